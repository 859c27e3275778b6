package naming

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvert(t *testing.T) {
	tests := []struct {
		conv Convention
		in   string
		want string
	}{
		{Camel, "Acquisition Start Date", "acquisitionStartDate"},
		{Camel, "Spatial Resolution (m)", "spatialResolution"},
		{Camel, "RCM_BEAM_MNEMONIC", "rcmBeamMnemonic"},
		{Camel, "RecordId", "recordId"},
		{Camel, "Product ID", "productId"},
		{Words, "acquisitionStartDate", "Acquisition Start Date"},
		{Words, "thisRecordURLValue", "This Record URL Value"},
		{Words, "Beam Mode", "Beam Mode"},
		{Upper, "Spatial Resolution (m)", "SPATIAL_RESOLUTION"},
		{Upper, "collectionId", "COLLECTION_ID"},
		{Convention("other"), "Beam Mode", "beamMode"},
	}
	for _, tt := range tests {
		t.Run(string(tt.conv)+"/"+tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.conv.Convert(tt.in))
		})
	}
}

func TestParse(t *testing.T) {
	c, err := Parse("")
	require.NoError(t, err)
	assert.Equal(t, Camel, c)

	c, err = Parse("UPPER")
	require.NoError(t, err)
	assert.Equal(t, Upper, c)

	_, err = Parse("kebab")
	assert.Error(t, err)
}
