package coolfhir

import (
	"testing"

	"github.com/dhcw/wpas-referral-proxy/lib/to"
	"github.com/stretchr/testify/assert"
	"github.com/zorgbijjou/golang-fhir-models/fhir-models/fhir"
)

func TestFirstIdentifier(t *testing.T) {
	identifiers := []fhir.Identifier{
		{System: to.Ptr("other"), Value: to.Ptr("1")},
		{System: to.Ptr(NHSNumberSystem), Value: to.Ptr("9449305552")},
	}
	assert.Equal(t, "9449305552", *FirstIdentifier(identifiers, FilterNamingSystem(NHSNumberSystem)).Value)
	assert.Nil(t, FirstIdentifier(identifiers, FilterNamingSystem("none")))
}

func TestFirstCoding(t *testing.T) {
	concept := &fhir.CodeableConcept{Coding: []fhir.Coding{
		{System: to.Ptr("a"), Code: to.Ptr("1")},
		{System: to.Ptr(MessageReasonSystem), Code: to.Ptr(MessageReasonNew)},
	}}
	assert.Equal(t, MessageReasonNew, *FirstCoding(concept, MessageReasonSystem).Code)
	assert.Nil(t, FirstCoding(concept, "b"))
	assert.Nil(t, FirstCoding(nil, "a"))
}
