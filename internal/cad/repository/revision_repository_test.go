package repository

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/bitfantasy/paramcad/internal/cad/entity"
	"github.com/bitfantasy/paramcad/internal/cad/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupDesign(t *testing.T) (*gorm.DB, entity.Design) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	types := testutil.SeedPieceTypes(t, db, testutil.LoadCatalog(t))
	return db, testutil.SeedDesign(t, db, types["base_plate"].ID, "Placa P-101")
}

func TestRevisionCreateAndRoundTrip(t *testing.T) {
	db, design := setupDesign(t)
	repo := NewRevisionRepository(db)
	ctx := context.Background()

	params := map[string]any{"largo": 300.0, "material": "ASTM_A36", "tiene_ranuras": false}
	rev, err := repo.Create(ctx, design.ID, params, "initial", "engineer", CreateOptions{
		ValidationPassed: true,
		Warnings:         []string{"Relación largo/ancho supera 10:1."},
	})
	require.NoError(t, err)
	assert.Equal(t, "A", rev.RevisionCode)
	assert.Equal(t, 1, rev.Sequence)
	assert.Equal(t, entity.ECOStatusDraft, rev.ECOStatus)

	got, err := repo.FindByID(ctx, rev.ID)
	require.NoError(t, err)
	gotParams, err := got.Parameters()
	require.NoError(t, err)
	assert.Equal(t, params, gotParams)
	assert.True(t, got.ValidationPassed)
	warnings, err := got.Warnings()
	require.NoError(t, err)
	assert.Equal(t, []string{"Relación largo/ancho supera 10:1."}, warnings)
	assert.Equal(t, "engineer", got.GeneratedBy)
	assert.Nil(t, got.FCStdPath)
	assert.False(t, got.GeneratedAt.IsZero())
}

func TestRevisionCodesAdvance(t *testing.T) {
	db, design := setupDesign(t)
	repo := NewRevisionRepository(db)
	ctx := context.Background()

	var codes []string
	for i := 0; i < 27; i++ {
		rev, err := repo.Create(ctx, design.ID, map[string]any{"i": float64(i)}, "", "system")
		require.NoError(t, err)
		codes = append(codes, rev.RevisionCode)
	}
	assert.Equal(t, "A", codes[0])
	assert.Equal(t, "B", codes[1])
	assert.Equal(t, "Z", codes[25])
	assert.Equal(t, "AA", codes[26])

	revs, err := repo.ListByDesign(ctx, design.ID)
	require.NoError(t, err)
	require.Len(t, revs, 27)
	for i, r := range revs {
		assert.Equal(t, i+1, r.Sequence)
		assert.Equal(t, codes[i], r.RevisionCode)
	}

	latest, err := repo.FindLatest(ctx, design.ID)
	require.NoError(t, err)
	assert.Equal(t, "AA", latest.RevisionCode)
}

func TestRevisionCodesArePerDesign(t *testing.T) {
	db, d1 := setupDesign(t)
	d2 := testutil.SeedDesign(t, db, d1.PieceTypeID, "Placa P-102")
	repo := NewRevisionRepository(db)
	ctx := context.Background()

	_, err := repo.Create(ctx, d1.ID, nil, "", "system")
	require.NoError(t, err)
	_, err = repo.Create(ctx, d1.ID, nil, "", "system")
	require.NoError(t, err)

	rev, err := repo.Create(ctx, d2.ID, nil, "", "system")
	require.NoError(t, err)
	assert.Equal(t, "A", rev.RevisionCode)
}

func TestRevisionConcurrentCreateHasNoDuplicates(t *testing.T) {
	db, design := setupDesign(t)
	repo := NewRevisionRepository(db)
	ctx := context.Background()

	const n = 10
	var wg sync.WaitGroup
	codes := make(chan string, n)
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rev, err := repo.Create(ctx, design.ID, map[string]any{}, "", "system")
			if err != nil {
				errs <- err
				return
			}
			codes <- rev.RevisionCode
		}()
	}
	wg.Wait()
	close(codes)
	close(errs)

	for err := range errs {
		t.Errorf("create failed: %v", err)
	}
	seen := map[string]bool{}
	for c := range codes {
		assert.False(t, seen[c], "duplicate revision code %s", c)
		seen[c] = true
	}
	assert.Len(t, seen, n)
	assert.True(t, seen["A"])
	assert.True(t, seen["J"])
}

func TestRevisionCreateLeavesDesignUntouched(t *testing.T) {
	db, design := setupDesign(t)
	repo := NewRevisionRepository(db)
	ctx := context.Background()

	var before entity.Design
	require.NoError(t, db.First(&before, "id = ?", design.ID).Error)

	_, err := repo.Create(ctx, design.ID, map[string]any{"largo": 300.0}, "", "system")
	require.NoError(t, err)
	_, err = repo.Create(ctx, design.ID, map[string]any{"largo": 320.0}, "", "system")
	require.NoError(t, err)

	var after entity.Design
	require.NoError(t, db.First(&after, "id = ?", design.ID).Error)
	assert.True(t, before.UpdatedAt.Equal(after.UpdatedAt))
	assert.Equal(t, before.Name, after.Name)
}

func TestRevisionCreateUnknownDesign(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewRevisionRepository(db)

	_, err := repo.Create(context.Background(), "missing", nil, "", "system")
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = repo.FindLatest(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = repo.FindByID(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestUpdateECOStatus(t *testing.T) {
	db, design := setupDesign(t)
	repo := NewRevisionRepository(db)
	ctx := context.Background()

	rev, err := repo.Create(ctx, design.ID, nil, "", "system")
	require.NoError(t, err)

	number := "ECO-2024-001"
	reason := "Primera emisión"
	issued, err := repo.UpdateECOStatus(ctx, rev.ID, entity.ECOStatusIssued, &number, &reason)
	require.NoError(t, err)
	assert.Equal(t, entity.ECOStatusIssued, issued.ECOStatus)
	require.NotNil(t, issued.ECONumber)
	assert.Equal(t, number, *issued.ECONumber)

	// nil keeps the recorded ECO number and reason
	obsolete, err := repo.UpdateECOStatus(ctx, rev.ID, entity.ECOStatusObsolete, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, entity.ECOStatusObsolete, obsolete.ECOStatus)
	require.NotNil(t, obsolete.ECONumber)
	assert.Equal(t, number, *obsolete.ECONumber)
	require.NotNil(t, obsolete.ECOReason)
	assert.Equal(t, reason, *obsolete.ECOReason)

	// transitions are not restricted
	back, err := repo.UpdateECOStatus(ctx, rev.ID, entity.ECOStatusDraft, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, entity.ECOStatusDraft, back.ECOStatus)
}

func TestUpdateECOStatusRejectsUnknownStatus(t *testing.T) {
	db, design := setupDesign(t)
	repo := NewRevisionRepository(db)
	ctx := context.Background()

	rev, err := repo.Create(ctx, design.ID, nil, "", "system")
	require.NoError(t, err)

	_, err = repo.UpdateECOStatus(ctx, rev.ID, "approved", nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidStatus))
	assert.Contains(t, err.Error(), "approved")

	got, err := repo.FindByID(ctx, rev.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.ECOStatusDraft, got.ECOStatus)

	_, err = repo.UpdateECOStatus(ctx, "missing", entity.ECOStatusIssued, nil, nil)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestUpdateOutputPaths(t *testing.T) {
	db, design := setupDesign(t)
	repo := NewRevisionRepository(db)
	ctx := context.Background()

	rev, err := repo.Create(ctx, design.ID, nil, "", "system")
	require.NoError(t, err)

	updated, err := repo.UpdateOutputPaths(ctx, rev.ID, entity.OutputPaths{
		FCStd: entity.StringPtr("/out/base_plate/p/A/model.FCStd"),
		Step:  entity.StringPtr("/out/base_plate/p/A/model.step"),
	})
	require.NoError(t, err)
	require.NotNil(t, updated.FCStdPath)
	assert.Equal(t, "/out/base_plate/p/A/model.FCStd", *updated.FCStdPath)
	assert.Nil(t, updated.PDFPath)

	// unset fields are cleared
	cleared, err := repo.UpdateOutputPaths(ctx, rev.ID, entity.OutputPaths{
		Step: entity.StringPtr("/out/base_plate/p/A/model2.step"),
	})
	require.NoError(t, err)
	assert.Nil(t, cleared.FCStdPath)
	require.NotNil(t, cleared.StepPath)
	assert.Equal(t, "/out/base_plate/p/A/model2.step", *cleared.StepPath)

	_, err = repo.UpdateOutputPaths(ctx, "missing", entity.OutputPaths{})
	assert.True(t, errors.Is(err, ErrNotFound))
}
