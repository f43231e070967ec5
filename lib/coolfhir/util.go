package coolfhir

import "github.com/zorgbijjou/golang-fhir-models/fhir-models/fhir"

func FirstIdentifier(identifiers []fhir.Identifier, predicate func(fhir.Identifier) bool) *fhir.Identifier {
	for _, identifier := range identifiers {
		if predicate(identifier) {
			return &identifier
		}
	}
	return nil
}

func FilterNamingSystem(system string) func(fhir.Identifier) bool {
	return func(ident fhir.Identifier) bool {
		return ident.System != nil && *ident.System == system
	}
}

// FirstCoding returns the first coding of the given system, or nil if there is none.
func FirstCoding(concept *fhir.CodeableConcept, system string) *fhir.Coding {
	if concept == nil {
		return nil
	}
	for _, coding := range concept.Coding {
		if coding.System != nil && *coding.System == system {
			return &coding
		}
	}
	return nil
}
