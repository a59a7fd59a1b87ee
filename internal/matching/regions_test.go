package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "carejoa-matching/internal/common/errors"
)

func TestRegionRegistry_Resolve(t *testing.T) {
	reg := DefaultRegions()

	tests := []struct {
		name        string
		sido        string
		sigungu     string
		wantSido    string
		wantLat     float64
		wantErr     bool
		wantErrFrom string
	}{
		{name: "district centroid", sido: "서울특별시", sigungu: "강남구", wantSido: "서울특별시", wantLat: 37.5172},
		{name: "alias and whitespace", sido: " 서울 ", sigungu: "서초구", wantSido: "서울특별시", wantLat: 37.4837},
		{name: "province only", sido: "서울특별시", wantSido: "서울특별시", wantLat: 37.5665},
		{name: "missing province", sido: "", wantErr: true, wantErrFrom: "sido"},
		{name: "unknown province", sido: "도쿄도", wantErr: true, wantErrFrom: "sido"},
		{name: "unknown district", sido: "서울특별시", sigungu: "해운대구", wantErr: true, wantErrFrom: "sigungu"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			region, center, err := reg.Resolve(tt.sido, tt.sigungu)
			if tt.wantErr {
				require.Error(t, err)
				var v *apperrors.ValidationError
				require.ErrorAs(t, err, &v)
				assert.Equal(t, tt.wantErrFrom, v.Field)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSido, region.Sido)
			assert.InDelta(t, tt.wantLat, center.Lat, 1e-9)
		})
	}
}

func TestLoadRegions(t *testing.T) {
	reg, err := LoadRegions([]byte(`
regions:
  - sido: 제주특별자치도
    aliases: [제주]
    lat: 33.4996
    lng: 126.5312
`))
	require.NoError(t, err)
	assert.True(t, reg.Known("제주"))

	// No district list: any district resolves to the province centroid.
	_, center, err := reg.Resolve("제주특별자치도", "서귀포시")
	require.NoError(t, err)
	assert.InDelta(t, 33.4996, center.Lat, 1e-9)

	_, err = LoadRegions([]byte("regions: ["))
	assert.Error(t, err)
}
