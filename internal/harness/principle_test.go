package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/morgisync/internal/engine"
	"github.com/roach88/morgisync/internal/model"
)

func TestCheckPrinciples_HealthyMirror(t *testing.T) {
	e := engine.New(nil)
	ctx := context.Background()
	e.Apply(ctx, engine.Snapshot{
		Images: []model.Image{
			{ID: "1", Category: "Art", IsSafe: true, SafePath: "safe/1.jpg"},
			{ID: "2", Category: "Art", IsDeleted: true},
		},
		Categories: []model.Category{{Name: "Art"}},
	})
	require.NoError(t, e.OpenDetail("1"))

	assert.Empty(t, CheckPrinciples(e))

	e.Apply(ctx, engine.ImageTrashed{ID: "1"})
	assert.Empty(t, CheckPrinciples(e), "trashing the open image closes the detail view")
}

func TestPrinciples_Violations(t *testing.T) {
	tests := []struct {
		name  string
		check func(MirrorState) error
		state MirrorState
	}{
		{
			name:  "duplicate id",
			check: uniqueIDs,
			state: MirrorState{Images: []model.Image{{ID: "1"}, {ID: "1"}}},
		},
		{
			name:  "trashed image visible",
			check: viewMatchesActive,
			state: MirrorState{
				Images:  []model.Image{{ID: "1", IsDeleted: true}},
				Visible: []model.Image{{ID: "1", IsDeleted: true}},
				Active:  model.CategoryAll,
			},
		},
		{
			name:  "visible out of order",
			check: viewMatchesActive,
			state: MirrorState{
				Images:  []model.Image{{ID: "1"}, {ID: "2"}},
				Visible: []model.Image{{ID: "2"}, {ID: "1"}},
				Active:  model.CategoryAll,
			},
		},
		{
			name:  "detail on trashed image",
			check: detailIsLive,
			state: MirrorState{Images: []model.Image{{ID: "1", IsDeleted: true}}, Detail: "1"},
		},
		{
			name:  "detail on missing image",
			check: detailIsLive,
			state: MirrorState{Detail: "1"},
		},
		{
			name:  "archived without path",
			check: archivedHavePath,
			state: MirrorState{Images: []model.Image{{ID: "1", IsSafe: true}}},
		},
		{
			name:  "proxy tried without url",
			check: proxyComplete,
			state: MirrorState{Images: []model.Image{{ID: "1", ProxyTried: true}}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.check(tt.state))
		})
	}
}

func TestPrincipleViolation_String(t *testing.T) {
	v := PrincipleViolation{Principle: "unique ids", Err: assert.AnError}
	assert.Equal(t, `principle "unique ids" violated: `+assert.AnError.Error(), v.String())
}
