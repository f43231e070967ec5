package referral

import (
	"encoding/json"
	"testing"

	"github.com/dhcw/wpas-referral-proxy/lib/to"
	"github.com/dhcw/wpas-referral-proxy/wpas"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapper_MapCreate(t *testing.T) {
	mapper := NewMapper(wpas.DefaultMappingConfig(), referralIDSystem)

	t.Run("ok", func(t *testing.T) {
		request, err := mapper.MapCreate(parse(t, createBundle(t)))

		require.NoError(t, err)
		assert.Equal(t, wpas.CreateReferralRequest{
			ExternalReference:         "000000070000",
			NHSNumber:                 "3478526985",
			PatientName:               wpas.PatientName{Surname: "Jones", FirstName: "Julie"},
			BirthDate:                 "19590504",
			Sex:                       "F",
			PostCode:                  "CF10 1AA",
			ReferringOrganisationCode: "W97016",
			ReceivingOrganisationCode: "7A4",
			MainSpecialty:             "130",
			ReferrerPriority:          "2",
			ReferralSource:            "03",
			WaitingListType:           "OP",
			ReferralDate:              "20240501",
			DateOnWaitingList:         "20240501",
			ReasonForReferral:         "Glaucoma",
		}, request)
	})
	t.Run("mapping is deterministic", func(t *testing.T) {
		message := parse(t, createBundle(t))
		first, err := mapper.MapCreate(message)
		require.NoError(t, err)
		second, err := mapper.MapCreate(message)
		require.NoError(t, err)

		firstJSON, _ := json.Marshal(first)
		secondJSON, _ := json.Marshal(second)
		assert.Equal(t, string(firstJSON), string(secondJSON))
	})
	t.Run("gender absent", func(t *testing.T) {
		data := editResource(t, createBundle(t), "Patient", func(resource map[string]any) {
			delete(resource, "gender")
		})

		request, err := mapper.MapCreate(parse(t, data))

		require.NoError(t, err)
		assert.Equal(t, "U", request.Sex)
	})
	t.Run("gender unknown", func(t *testing.T) {
		data := editResource(t, createBundle(t), "Patient", func(resource map[string]any) {
			resource["gender"] = "unknown"
		})

		request, err := mapper.MapCreate(parse(t, data))

		require.NoError(t, err)
		assert.Equal(t, "U", request.Sex)
	})
	t.Run("official name is preferred", func(t *testing.T) {
		data := editResource(t, createBundle(t), "Patient", func(resource map[string]any) {
			resource["name"] = []any{
				map[string]any{"use": "nickname", "family": "Jonesy", "given": []any{"Jules"}},
				map[string]any{"use": "official", "family": "Jones", "given": []any{"Julie"}},
			}
		})

		request, err := mapper.MapCreate(parse(t, data))

		require.NoError(t, err)
		assert.Equal(t, wpas.PatientName{Surname: "Jones", FirstName: "Julie"}, request.PatientName)
	})
	t.Run("organisation name matches case-insensitively", func(t *testing.T) {
		config := wpas.DefaultMappingConfig()
		config.ReceivingOrganisationName = "RECEIVING/PERFORMING ORGANIZATION"
		mapper := NewMapper(config, referralIDSystem)

		request, err := mapper.MapCreate(parse(t, createBundle(t)))

		require.NoError(t, err)
		assert.Equal(t, "7A4", request.ReceivingOrganisationCode)
	})
	t.Run("organisation not found", func(t *testing.T) {
		data := removeResources(t, createBundle(t), "Organization")

		_, err := mapper.MapCreate(parse(t, data))

		require.EqualError(t, err, "Organization 'Receiving/performing Organization' not found")
	})
	t.Run("organisation without ODS code", func(t *testing.T) {
		data := editResource(t, createBundle(t), "Organization", func(resource map[string]any) {
			delete(resource, "identifier")
		})

		_, err := mapper.MapCreate(parse(t, data))

		require.EqualError(t, err, "Organization 'Sender Organization' has no ODS code")
	})
	t.Run("reason from coding display", func(t *testing.T) {
		data := editResource(t, createBundle(t), "ServiceRequest", func(resource map[string]any) {
			resource["reasonCode"] = []any{map[string]any{"coding": []any{map[string]any{"display": "Cataract"}}}}
		})

		request, err := mapper.MapCreate(parse(t, data))

		require.NoError(t, err)
		assert.Equal(t, "Cataract", request.ReasonForReferral)
	})
	t.Run("no ServiceRequest", func(t *testing.T) {
		_, err := mapper.MapCreate(parse(t, removeResources(t, createBundle(t), "ServiceRequest")))

		require.Error(t, err)
	})
}

func TestMapper_MapCancel(t *testing.T) {
	mapper := NewMapper(wpas.DefaultMappingConfig(), referralIDSystem)

	t.Run("ok", func(t *testing.T) {
		request, err := mapper.MapCancel(parse(t, cancelBundle(t, " REF-1 ")))

		require.NoError(t, err)
		assert.Equal(t, wpas.CancelReferralRequest{
			ReferralID:         "REF-1",
			NHSNumber:          "3478526985",
			CancellationReason: "revoked",
			CancellationDate:   "20240501",
		}, request)
	})
	t.Run("no referral ID", func(t *testing.T) {
		_, err := mapper.MapCancel(parse(t, createBundle(t)))

		require.EqualError(t, err, "ServiceRequest has no identifier with system "+referralIDSystem)
	})
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "Glaucoma", truncate("  Glaucoma, severe", 8))
	assert.Equal(t, "Glau", truncate("Glaucoma", 4))
	assert.Equal(t, "Cataract", truncate("Cataract ", 8))
	assert.Equal(t, "Ŵyŵ", truncate("Ŵyŵ", 8))
	assert.Equal(t, "Ŵy", truncate("Ŵyŵ", 2))
	assert.Equal(t, "", truncate("", 8))
}

func TestFormatDate(t *testing.T) {
	tests := []struct {
		input    *string
		expected string
	}{
		{input: nil, expected: ""},
		{input: to.Ptr("1959-05-04"), expected: "19590504"},
		{input: to.Ptr("2024-05-01T10:15:00+00:00"), expected: "20240501"},
		{input: to.Ptr("2024-05-01T10:15:00.123Z"), expected: "20240501"},
		{input: to.Ptr("2024-05-01T10:15:00"), expected: "20240501"},
		{input: to.Ptr("2024-05"), expected: "20240501"},
		{input: to.Ptr("2024"), expected: "20240101"},
		{input: to.Ptr("04/05/1959"), expected: "19590504"},
		{input: to.Ptr("19590504"), expected: "19590504"},
		{input: to.Ptr(" 1959-05-04 "), expected: "19590504"},
		{input: to.Ptr("yesterday"), expected: ""},
	}
	for _, tt := range tests {
		name := "nil"
		if tt.input != nil {
			name = *tt.input
		}
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatDate(tt.input))
		})
	}
}
