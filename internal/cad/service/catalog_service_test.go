package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bitfantasy/paramcad/internal/cad/catalog"
	"github.com/bitfantasy/paramcad/internal/cad/repository"
	"github.com/bitfantasy/paramcad/internal/cad/sse"
	"github.com/bitfantasy/paramcad/internal/cad/testutil"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogQueries(t *testing.T) {
	env := testutil.SetupEnv(t)
	repos := repository.NewRepositories(env.DB)
	metrics := NewMetrics(prometheus.NewRegistry())
	svc := NewCatalogService(repos.PieceType, env.Catalog, metrics, nil, nil)
	ctx := context.Background()

	all, err := svc.ListPieceTypes(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	piping, err := svc.ListPieceTypes(ctx, "piping")
	require.NoError(t, err)
	require.Len(t, piping, 1)
	assert.Equal(t, "pipe_flange", piping[0].Code)

	detail, err := svc.GetPieceType(ctx, "base_plate")
	require.NoError(t, err)
	assert.Equal(t, "Placa Base Estructural", detail.DisplayName)
	assert.Len(t, detail.Spec.ValidationRules, 7)

	_, err = svc.GetPieceType(ctx, "gusset")
	assert.True(t, errors.Is(err, ErrPieceTypeNotFound))

	disciplines, err := svc.Disciplines()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"structural", "piping"}, disciplines)

	version, err := svc.Version()
	require.NoError(t, err)
	assert.Equal(t, "1.0", version)
}

func TestCatalogValidate(t *testing.T) {
	env := testutil.SetupEnv(t)
	repos := repository.NewRepositories(env.DB)
	metrics := NewMetrics(prometheus.NewRegistry())
	svc := NewCatalogService(repos.PieceType, env.Catalog, metrics, nil, nil)
	ctx := context.Background()

	spec, err := env.Catalog.Piece("base_plate")
	require.NoError(t, err)

	result, err := svc.Validate(ctx, &ValidateRequest{PieceCode: "base_plate", Parameters: spec.Defaults()})
	require.NoError(t, err)
	assert.True(t, result.IsValid)
	assert.Empty(t, result.Errors())

	params := spec.Defaults()
	params["espesor"] = 2.0
	result, err = svc.Validate(ctx, &ValidateRequest{PieceCode: "base_plate", Parameters: params})
	require.NoError(t, err)
	assert.False(t, result.IsValid)
	assert.Equal(t, []string{"Espesor mínimo 4 mm."}, result.ErrorMessages())

	_, err = svc.Validate(ctx, &ValidateRequest{PieceCode: "gusset"})
	assert.True(t, errors.Is(err, ErrPieceTypeNotFound))

	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.Validations.WithLabelValues("base_plate", "valid")))
	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.Validations.WithLabelValues("base_plate", "invalid")))
}

func TestCatalogReload(t *testing.T) {
	data, err := os.ReadFile(testutil.CatalogPath())
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "piece_catalog.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cat := catalog.New(path)
	require.NoError(t, cat.Reload())

	hub := sse.NewHub(nil)
	client := sse.NewClient("c1", "")
	hub.Register(client)
	metrics := NewMetrics(prometheus.NewRegistry())
	svc := NewCatalogService(nil, cat, metrics, hub, nil)

	updated := strings.Replace(string(data), `"catalog_version": "1.0"`, `"catalog_version": "1.1"`, 1)
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))
	require.NoError(t, svc.Reload())

	version, err := svc.Version()
	require.NoError(t, err)
	assert.Equal(t, "1.1", version)

	ev := <-client.Events
	assert.Equal(t, sse.EventCatalogReloaded, ev.EventType)
	assert.Contains(t, ev.Data, `"catalog_version":"1.1"`)

	// a broken file keeps the previous catalog
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	assert.Error(t, svc.Reload())
	version, err = svc.Version()
	require.NoError(t, err)
	assert.Equal(t, "1.1", version)

	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.CatalogReloads.WithLabelValues("ok")))
	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.CatalogReloads.WithLabelValues("error")))
}
