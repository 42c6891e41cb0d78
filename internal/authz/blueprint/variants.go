// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ZAC Contributors

package blueprint

import (
	"github.com/zaakcentrum/zac/internal/authz"
	"github.com/zaakcentrum/zac/internal/authz/confidentiality"
)

// ReferenceField is the index field holding an object's reference.
const ReferenceField = "url"

var caseFields = fieldNames{
	domain:          "zaaktype.catalogus",
	typeDescription: "zaaktype.omschrijving",
	confidentiality: "vertrouwelijkheidaanduiding",
}

var documentFields = fieldNames{
	domain:          "informatieobjecttype.catalogus",
	typeDescription: "informatieobjecttype.omschrijving",
	confidentiality: "vertrouwelijkheidaanduiding",
}

// CasePolicy grants access to cases of one case type within a catalogue,
// up to a confidentiality level.
type CasePolicy struct {
	Catalogus            string                `json:"catalogus" jsonschema:"minLength=1,description=URL of the catalogue the case type belongs to"`
	ZaaktypeOmschrijving string                `json:"zaaktype_omschrijving" jsonschema:"minLength=1,description=description of the case type"`
	MaxVA                confidentiality.Level `json:"max_va"`
}

// ObjectType implements Policy.
func (CasePolicy) ObjectType() authz.ObjectType { return authz.ObjectTypeCase }

// Matches implements Policy.
func (p CasePolicy) Matches(obj authz.Object) bool {
	return matchAttributes(authz.ObjectTypeCase, p.Catalogus, p.ZaaktypeOmschrijving, p.MaxVA, obj)
}

// Clause implements Policy.
func (p CasePolicy) Clause(prefix string) Clause {
	return compileAttributes(caseFields, prefix, p.Catalogus, p.ZaaktypeOmschrijving, p.MaxVA)
}

func (CasePolicy) isPolicy() {}

// DocumentPolicy grants access to documents of one document type within a
// catalogue, up to a confidentiality level.
type DocumentPolicy struct {
	Catalogus          string                `json:"catalogus" jsonschema:"minLength=1,description=URL of the catalogue the document type belongs to"`
	IOTypeOmschrijving string                `json:"iotype_omschrijving" jsonschema:"minLength=1,description=description of the document type"`
	MaxVA              confidentiality.Level `json:"max_va"`
}

// ObjectType implements Policy.
func (DocumentPolicy) ObjectType() authz.ObjectType { return authz.ObjectTypeDocument }

// Matches implements Policy.
func (p DocumentPolicy) Matches(obj authz.Object) bool {
	return matchAttributes(authz.ObjectTypeDocument, p.Catalogus, p.IOTypeOmschrijving, p.MaxVA, obj)
}

// Clause implements Policy.
func (p DocumentPolicy) Clause(prefix string) Clause {
	return compileAttributes(documentFields, prefix, p.Catalogus, p.IOTypeOmschrijving, p.MaxVA)
}

func (DocumentPolicy) isPolicy() {}
