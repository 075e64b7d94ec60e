package audit

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orgadmin/internal/model"
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func loaded(a model.Auditable) *model.Auditable {
	a.Snapshot()
	return &a
}

func TestClassify(t *testing.T) {
	live := loaded(model.Auditable{})
	deleted := loaded(model.Auditable{IsDeleted: true})

	marked := loaded(model.Auditable{})
	marked.MarkDeleted()

	restored := loaded(model.Auditable{IsDeleted: true})
	restored.Restore()

	cases := []struct {
		name  string
		state State
		a     *model.Auditable
		want  Kind
	}{
		{"new", New, &model.Auditable{}, Create},
		{"changed live row", Changed, live, Modify},
		{"deletion signal raised", Changed, marked, Delete},
		{"already deleted row edited", Changed, deleted, Modify},
		{"restore", Changed, restored, Modify},
		{"unchanged", Unchanged, live, Skip},
		{"detached", Detached, marked, Skip},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.state, tc.a))
		})
	}
}

func TestApplyCreate(t *testing.T) {
	actor := uuid.New()
	stale := t0.Add(-time.Hour)
	a := &model.Auditable{ModifiedAt: &stale, DeletedAt: &stale, IsDeleted: true}

	omit := Apply(Create, a, &actor, t0)

	assert.Empty(t, omit)
	assert.True(t, a.CreatedAt.Equal(t0))
	require.NotNil(t, a.CreatedBy)
	assert.Equal(t, actor, *a.CreatedBy)
	assert.Nil(t, a.ModifiedAt)
	assert.Nil(t, a.ModifiedBy)
	assert.Nil(t, a.DeletedAt)
	assert.Nil(t, a.DeletedBy)
	assert.False(t, a.IsDeleted)
}

func TestApplyModifyOmitsCreatedColumns(t *testing.T) {
	creator, editor := uuid.New(), uuid.New()
	a := loaded(model.Auditable{CreatedAt: t0, CreatedBy: &creator})

	now := t0.Add(time.Minute)
	omit := Apply(Modify, a, &editor, now)

	assert.ElementsMatch(t, []string{"created_at", "created_by"}, omit)
	assert.True(t, a.CreatedAt.Equal(t0))
	assert.Equal(t, creator, *a.CreatedBy)
	require.NotNil(t, a.ModifiedAt)
	assert.True(t, a.ModifiedAt.Equal(now))
	assert.Equal(t, editor, *a.ModifiedBy)
	assert.Nil(t, a.DeletedAt)
}

func TestApplyDeleteFreezesModified(t *testing.T) {
	creator, editor, remover := uuid.New(), uuid.New(), uuid.New()
	edited := t0.Add(time.Minute)
	a := loaded(model.Auditable{CreatedAt: t0, CreatedBy: &creator, ModifiedAt: &edited, ModifiedBy: &editor})
	a.MarkDeleted()

	now := t0.Add(time.Hour)
	omit := Apply(Classify(Changed, a), a, &remover, now)

	assert.ElementsMatch(t, []string{"created_at", "created_by", "modified_at", "modified_by"}, omit)
	assert.True(t, a.ModifiedAt.Equal(edited))
	assert.Equal(t, editor, *a.ModifiedBy)
	require.NotNil(t, a.DeletedAt)
	assert.True(t, a.DeletedAt.Equal(now))
	assert.Equal(t, remover, *a.DeletedBy)
	assert.True(t, a.IsDeleted)
}

func TestApplyRestoreClearsDeletion(t *testing.T) {
	remover, editor := uuid.New(), uuid.New()
	a := loaded(model.Auditable{CreatedAt: t0, DeletedAt: &t0, DeletedBy: &remover, IsDeleted: true})
	a.Restore()

	Apply(Classify(Changed, a), a, &editor, t0.Add(time.Minute))

	assert.False(t, a.IsDeleted)
	assert.Nil(t, a.DeletedAt)
	assert.Nil(t, a.DeletedBy)
	assert.Equal(t, editor, *a.ModifiedBy)
}

func TestApplyAnonymousActor(t *testing.T) {
	a := &model.Auditable{}
	Apply(Create, a, nil, t0)
	assert.Nil(t, a.CreatedBy)
}

func TestApplyCopiesActor(t *testing.T) {
	actor := uuid.New()
	a := &model.Auditable{}
	Apply(Create, a, &actor, t0)
	actor = uuid.New()
	assert.NotEqual(t, actor, *a.CreatedBy)
}

func TestActorContext(t *testing.T) {
	assert.Nil(t, ActorFrom(context.Background()))

	id := uuid.New()
	got := ActorFrom(WithActor(context.Background(), id))
	require.NotNil(t, got)
	assert.Equal(t, id, *got)
}
