package client

import (
	"context"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robert-malhotra/go-rapi-client/pkg/rapi"
)

func TestCollections(t *testing.T) {
	f := newFakeRAPI(t)
	c := f.client()
	ctx := context.Background()

	colls, err := c.Collections(ctx)
	require.NoError(t, err)

	ids := make([]string, 0, len(colls))
	for _, coll := range colls {
		ids = append(ids, coll.ID)
		assert.Empty(t, coll.Children)
	}
	assert.Equal(t, []string{"RCMImageProducts", "Radarsat2", "NAPL"}, ids)
	assert.Equal(t, []string{"rcm"}, colls[0].Aliases)

	_, err = c.Collections(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, f.callCount("/collections"), "tree is cached")
}

func TestCollectionID(t *testing.T) {
	f := newFakeRAPI(t)
	c := f.client()

	tests := []struct {
		name string
		want string
	}{
		{"RCMImageProducts", "RCMImageProducts"},
		{"rcm", "RCMImageProducts"},
		{"RCM", "RCMImageProducts"},
		{"rcm image products", "RCMImageProducts"},
		{"radarsat-2", "Radarsat2"},
		{"  r2 ", "Radarsat2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.CollectionID(context.Background(), tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := c.CollectionID(context.Background(), "Landsat")
	require.ErrorIs(t, err, ErrUnknownCollection)
}

func TestCollectionFieldsFetchedOnce(t *testing.T) {
	f := newFakeRAPI(t)
	c := f.client()
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]*rapi.Collection, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			coll, err := c.Collection(ctx, "rcm")
			assert.NoError(t, err)
			results[i] = coll
		}()
	}
	wg.Wait()

	for _, coll := range results {
		require.NotNil(t, coll)
		assert.Equal(t, "RCMImageProducts", coll.ID)
		assert.Equal(t, []string{"rcm"}, coll.Aliases)
		assert.Len(t, coll.SearchFields, 4)
	}
	assert.Equal(t, 1, f.callCount("/collections/RCMImageProducts"))

	c.RefreshCatalog()
	_, err := c.Collection(ctx, "rcm")
	require.NoError(t, err)
	assert.Equal(t, 2, f.callCount("/collections/RCMImageProducts"))
	assert.Equal(t, 2, f.callCount("/collections"))
}

func TestAvailableFieldsAndChoices(t *testing.T) {
	f := newFakeRAPI(t)
	c := f.client()
	ctx := context.Background()

	search, results, err := c.AvailableFields(ctx, "RCMImageProducts")
	require.NoError(t, err)
	require.Len(t, search, 4)
	require.Len(t, results, 5)
	assert.Equal(t, rapi.DataTypeDateTimeRange, search[1].DataType)

	choices, err := c.FieldChoices(ctx, "rcm", "Polarization")
	require.NoError(t, err)
	assert.Equal(t, []rapi.Choice{{Label: "HH", Value: "HH"}, {Label: "VV", Value: "VV"}}, choices)

	choices, err = c.FieldChoices(ctx, "rcm", "RCM.BEAM_MNEMONIC")
	require.NoError(t, err)
	assert.Empty(t, choices)

	_, err = c.FieldChoices(ctx, "rcm", "Cloud Cover")
	require.ErrorIs(t, err, ErrUnknownField)
}

func TestCollectionCatalogError(t *testing.T) {
	f := newFakeRAPI(t)
	f.handle("/collections/RCMImageProducts", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	c := f.client()

	_, err := c.Collection(context.Background(), "rcm")
	require.Error(t, err)
	assert.Equal(t, KindServer, kindOf(err))

	// failures are not cached
	f.handle("/collections/RCMImageProducts", rawJSONHandler(rcmFieldsJSON))
	_, err = c.Collection(context.Background(), "rcm")
	require.NoError(t, err)
}
