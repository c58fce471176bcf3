package service

import (
	"context"
	"errors"
	"testing"

	"github.com/bitfantasy/paramcad/internal/cad/repository"
	"github.com/bitfantasy/paramcad/internal/cad/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDesignService(t *testing.T) *DesignService {
	t.Helper()
	env := testutil.SetupEnv(t)
	repos := repository.NewRepositories(env.DB)
	return NewDesignService(repos.Design, repos.PieceType)
}

func TestCreateDesign(t *testing.T) {
	svc := newDesignService(t)
	ctx := context.Background()

	drawing := " EST-001 "
	d, err := svc.Create(ctx, &CreateDesignRequest{PieceTypeCode: "base_plate", Name: "  Placa columna C1 ", DrawingNumber: &drawing})
	require.NoError(t, err)
	assert.Len(t, d.ID, 32)
	assert.Equal(t, "Placa columna C1", d.Name)
	assert.Equal(t, "EST-001", *d.DrawingNumber)
	require.NotNil(t, d.PieceType)
	assert.Equal(t, "base_plate", d.PieceType.Code)

	_, err = svc.Create(ctx, &CreateDesignRequest{PieceTypeCode: "base_plate", Name: "Otra", DrawingNumber: &drawing})
	assert.True(t, errors.Is(err, repository.ErrConflict))

	_, err = svc.Create(ctx, &CreateDesignRequest{PieceTypeCode: "gusset", Name: "Cartela"})
	assert.True(t, errors.Is(err, ErrPieceTypeNotFound))

	_, err = svc.Create(ctx, &CreateDesignRequest{PieceTypeCode: "base_plate", Name: "   "})
	assert.True(t, errors.Is(err, ErrInvalidInput))

	// blank drawing numbers are stored as NULL and never conflict
	blank := "  "
	for _, name := range []string{"Sin plano 1", "Sin plano 2"} {
		d, err := svc.Create(ctx, &CreateDesignRequest{PieceTypeCode: "base_plate", Name: name, DrawingNumber: &blank})
		require.NoError(t, err)
		assert.Nil(t, d.DrawingNumber)
	}
}

func TestListUpdateDeleteDesign(t *testing.T) {
	svc := newDesignService(t)
	ctx := context.Background()

	plate, err := svc.Create(ctx, &CreateDesignRequest{PieceTypeCode: "base_plate", Name: "Placa"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, &CreateDesignRequest{PieceTypeCode: "pipe_flange", Name: "Brida"})
	require.NoError(t, err)

	all, err := svc.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	plates, err := svc.List(ctx, "base_plate")
	require.NoError(t, err)
	require.Len(t, plates, 1)
	assert.Equal(t, plate.ID, plates[0].ID)

	_, err = svc.List(ctx, "gusset")
	assert.True(t, errors.Is(err, ErrPieceTypeNotFound))

	name := "Placa C2"
	desc := "Columna eje 2"
	updated, err := svc.Update(ctx, plate.ID, &UpdateDesignRequest{Name: &name, Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, "Placa C2", updated.Name)
	assert.Equal(t, "Columna eje 2", updated.Description)

	empty := " "
	_, err = svc.Update(ctx, plate.ID, &UpdateDesignRequest{Name: &empty})
	assert.True(t, errors.Is(err, ErrInvalidInput))

	unchanged, err := svc.Update(ctx, plate.ID, &UpdateDesignRequest{})
	require.NoError(t, err)
	assert.Equal(t, "Placa C2", unchanged.Name)

	_, err = svc.Update(ctx, "missing", &UpdateDesignRequest{Name: &name})
	assert.True(t, errors.Is(err, ErrDesignNotFound))

	require.NoError(t, svc.Delete(ctx, plate.ID))
	_, err = svc.Get(ctx, plate.ID)
	assert.True(t, errors.Is(err, ErrDesignNotFound))
	assert.True(t, errors.Is(svc.Delete(ctx, plate.ID), ErrDesignNotFound))
}
