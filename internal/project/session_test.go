package project

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/qa-validator/internal/fixture"
	"github.com/rcliao/qa-validator/internal/model"
	"github.com/rcliao/qa-validator/internal/pipeline"
	"github.com/rcliao/qa-validator/internal/store"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func authTemplate() model.Fragment {
	return model.Fragment{
		Requirements: []model.Requirement{
			{ID: "REQ-1", Title: "Login", Statement: "Sign in", Type: "Functional", Priority: "High", Status: "Approved"},
			{ID: "REQ-2", Title: "Logout", Statement: "Sign out", Type: "Functional", Priority: "Low", Status: "Draft"},
			{ID: "REQ-3", Title: "Lockout", Statement: "Lock after failures", Type: "Functional", Priority: "High", Status: "In Review"},
		},
		TestCases: []model.TestCase{
			{ID: "TC-1", Title: "Valid login", Type: "Positive", Priority: "High", Status: "Ready",
				Steps:              []model.TestStep{{Number: 1, Action: "Sign in", ExpectedResult: "Dashboard"}},
				LinkedRequirements: []string{"REQ-1"}},
			{ID: "TC-2", Title: "Lock", Type: "Negative", Priority: "High", Status: "Draft",
				LinkedRequirements: []string{"REQ-3"}},
		},
		Links: []model.TraceabilityLink{
			{RequirementID: "REQ-1", RequirementTitle: "Login", LinkedTestCases: []string{"TC-1"}, Coverage: model.CoverageCovered},
			{RequirementID: "REQ-2", RequirementTitle: "Logout", Coverage: model.CoverageUncovered},
			{RequirementID: "REQ-3", RequirementTitle: "Lockout", LinkedTestCases: []string{"TC-2"}, Coverage: model.CoveragePartial},
		},
	}
}

func newTestSession(t *testing.T, stages ...pipeline.Stage) *Session {
	t.Helper()
	st, err := store.NewSQLiteStore()
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return newSessionOver(t, st, stages...)
}

func newSessionOver(t *testing.T, st store.Store, stages ...pipeline.Stage) *Session {
	t.Helper()
	if len(stages) == 0 {
		stages = []pipeline.Stage{
			{Name: "extract", Duration: 4 * time.Millisecond},
			{Name: "generate", Duration: 2 * time.Millisecond},
		}
	}
	p := pipeline.New(pipeline.Config{
		Stages:      stages,
		Tick:        time.Millisecond,
		SettleDelay: time.Millisecond,
		Logger:      quietLogger(),
	})
	return New(st, p, authTemplate(), quietLogger())
}

func wait(t *testing.T, h *pipeline.Handle) pipeline.State {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	state, err := h.Wait(ctx)
	require.NoError(t, err, "run did not finish in time")
	return state
}

func upload(t *testing.T, s *Session, segment string) {
	t.Helper()
	h, err := s.Upload(context.Background(), UploadRequest{Segment: segment, Files: []string{"spec.pdf"}}, nil)
	require.NoError(t, err)
	require.Equal(t, pipeline.StateCompleted, wait(t, h))
}

func strPtr(s string) *string { return &s }

func TestUploadMergesNamespacedFragment(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t)

	upload(t, s, "  Auth  ")

	v, err := s.View(ctx)
	require.NoError(t, err)
	require.Len(t, v.Requirements, 3)
	require.Len(t, v.TestCases, 2)
	require.Len(t, v.Traceability.Links, 3)
	for _, r := range v.Requirements {
		assert.True(t, strings.HasPrefix(r.ID, "A1_"), r.ID)
		assert.Equal(t, "Auth", r.Segment)
	}

	auth, err := s.Store().Filter(ctx, "Auth")
	require.NoError(t, err)
	assert.Equal(t, v.Traceability.Summary, auth.Traceability.Summary)

	segs, err := s.Store().Segments(ctx)
	require.NoError(t, err)
	assert.Equal(t, []model.Segment{{Name: "Auth", Ordinal: 1}}, segs)
}

func TestUploadOrdinalsIncrease(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t)

	upload(t, s, "Auth")
	upload(t, s, "Payment Module")

	v, err := s.Store().Filter(ctx, "Payment Module")
	require.NoError(t, err)
	require.NotEmpty(t, v.Requirements)
	assert.Equal(t, "PM2_REQ-1", v.Requirements[0].ID)
	assert.Equal(t, []string{"PM2_REQ-1"}, v.TestCases[0].LinkedRequirements)
}

func TestCancelledUploadLeavesStoreUntouched(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t, pipeline.Stage{Name: "slow", Duration: time.Hour})

	_, err := s.Import(ctx, "Auth", authTemplate())
	require.NoError(t, err)

	h, err := s.Upload(ctx, UploadRequest{Segment: "Billing", Files: []string{"a.docx"}}, nil)
	require.NoError(t, err)
	h.Cancel()
	assert.Equal(t, pipeline.StateCancelled, wait(t, h))

	v, err := s.Store().Filter(ctx, model.AllSegments)
	require.NoError(t, err)
	assert.Len(t, v.Requirements, 3)
	n, err := s.Store().UploadCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	segs, err := s.Store().Segments(ctx)
	require.NoError(t, err)
	assert.Equal(t, []model.Segment{{Name: "Auth", Ordinal: 1}}, segs)
	assert.False(t, s.Busy())
}

// gatedStore lets a test hold MergeFragment open or make it fail.
type gatedStore struct {
	store.Store
	entered chan struct{}
	release chan struct{}
	err     error
}

func (g *gatedStore) MergeFragment(ctx context.Context, f model.Fragment, segment string) error {
	if g.entered != nil {
		close(g.entered)
		<-g.release
	}
	if g.err != nil {
		return g.err
	}
	return g.Store.MergeFragment(ctx, f, segment)
}

func newGatedStore(t *testing.T) *gatedStore {
	t.Helper()
	st, err := store.NewSQLiteStore()
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return &gatedStore{Store: st}
}

func TestResetDiscardsCompletionStillMerging(t *testing.T) {
	ctx := context.Background()
	gs := newGatedStore(t)
	gs.entered = make(chan struct{})
	gs.release = make(chan struct{})
	s := newSessionOver(t, gs)

	h, err := s.Upload(ctx, UploadRequest{Segment: "Auth", Files: []string{"a.pdf"}}, nil)
	require.NoError(t, err)

	select {
	case <-gs.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("merge never started")
	}

	resetDone := make(chan error, 1)
	go func() { resetDone <- s.Reset(ctx) }()
	close(gs.release)

	select {
	case err := <-resetDone:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("reset did not return")
	}
	wait(t, h)

	snap, err := s.Store().ExportAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.Requirements, "data merged after reset")
	assert.Empty(t, snap.Segments)
	assert.Zero(t, snap.UploadCount)
	assert.False(t, s.Busy())
}

func TestResetDropsCompletionOfEarlierGeneration(t *testing.T) {
	ctx := context.Background()
	gs := newGatedStore(t)
	s := newSessionOver(t, gs)

	// A completion that arrives after Reset belongs to the previous generation.
	gen := s.generation
	require.NoError(t, s.Reset(ctx))

	merged, err := s.mergeCompleted(ctx, gen, authTemplate(), "Auth")
	require.NoError(t, err)
	assert.False(t, merged)

	n, err := s.Store().UploadCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMergeFailureIsReported(t *testing.T) {
	ctx := context.Background()
	gs := newGatedStore(t)
	gs.err = errors.New("disk on fire")
	s := newSessionOver(t, gs)

	var changes []Change
	var mu sync.Mutex
	s.Subscribe(func(c Change) {
		mu.Lock()
		defer mu.Unlock()
		changes = append(changes, c)
	})

	completed := false
	obs := pipeline.Callbacks{OnComplete: func(model.Fragment) { completed = true }}
	h, err := s.Upload(ctx, UploadRequest{Segment: "Auth", Files: []string{"a.pdf"}}, obs)
	require.NoError(t, err)
	wait(t, h)

	assert.False(t, completed, "completion must be withheld when the merge fails")
	assert.ErrorIs(t, s.LastError(), gs.err)
	mu.Lock()
	assert.Empty(t, changes)
	mu.Unlock()

	// The next upload starts with a clean slate.
	gs.err = nil
	upload(t, s, "Auth")
	assert.NoError(t, s.LastError())
}

func TestUploadRejectedWhileInFlight(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t, pipeline.Stage{Name: "slow", Duration: time.Hour})

	h, err := s.Upload(ctx, UploadRequest{Segment: "Auth", Files: []string{"a.pdf"}}, nil)
	require.NoError(t, err)
	assert.True(t, s.Busy())

	_, err = s.Upload(ctx, UploadRequest{Segment: "Other", Files: []string{"b.pdf"}}, nil)
	assert.ErrorIs(t, err, ErrUploadInProgress)
	_, err = s.Import(ctx, "Other", authTemplate())
	assert.ErrorIs(t, err, ErrUploadInProgress)

	h.Cancel()
	wait(t, h)
	assert.False(t, s.Busy())
}

func TestUploadValidation(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t)
	upload(t, s, "Auth")

	cases := []struct {
		name string
		req  UploadRequest
		want error
	}{
		{"no files", UploadRequest{Segment: "Billing"}, ErrNoFiles},
		{"bad extension", UploadRequest{Segment: "Billing", Files: []string{"a.pdf", "run.exe"}}, ErrUnsupportedFile},
		{"no extension", UploadRequest{Segment: "Billing", Files: []string{"README"}}, ErrUnsupportedFile},
		{"blank name", UploadRequest{Segment: "   ", Files: []string{"a.pdf"}}, ErrInvalidSegment},
		{"short name", UploadRequest{Segment: " X ", Files: []string{"a.pdf"}}, ErrInvalidSegment},
		{"long name", UploadRequest{Segment: strings.Repeat("n", 101), Files: []string{"a.pdf"}}, ErrInvalidSegment},
		{"reserved", UploadRequest{Segment: "All", Files: []string{"a.pdf"}}, ErrInvalidSegment},
		{"duplicate", UploadRequest{Segment: " Auth ", Files: []string{"a.pdf"}}, ErrDuplicateSegment},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h, err := s.Upload(ctx, tc.req, nil)
			assert.Nil(t, h)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	n, err := s.Store().UploadCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "rejected uploads must not touch the store")
}

func TestValidateFilesCaseInsensitive(t *testing.T) {
	assert.NoError(t, ValidateFiles([]string{"Plan.PDF", "notes.Md", "/tmp/sheet.XLSX"}))
}

func TestValidateSegmentNameBounds(t *testing.T) {
	name, err := ValidateSegmentName("  ab  ", nil)
	require.NoError(t, err)
	assert.Equal(t, "ab", name)

	_, err = ValidateSegmentName(strings.Repeat("é", 100), nil)
	assert.NoError(t, err, "length counts characters, not bytes")
}

func TestImport(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t)
	upload(t, s, "Auth")

	nf, err := s.Import(ctx, "Billing Rules", authTemplate())
	require.NoError(t, err)
	assert.Equal(t, "BR2_REQ-1", nf.Requirements[0].ID)

	v, err := s.Store().Filter(ctx, "Billing Rules")
	require.NoError(t, err)
	assert.Len(t, v.Requirements, 3)

	_, err = s.Import(ctx, "Billing Rules", authTemplate())
	assert.ErrorIs(t, err, ErrDuplicateSegment)
}

func TestSelectAndView(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t)
	upload(t, s, "Auth")
	_, err := s.Import(ctx, "Billing", authTemplate())
	require.NoError(t, err)

	assert.Equal(t, model.AllSegments, s.Selected())
	v, err := s.View(ctx)
	require.NoError(t, err)
	assert.Len(t, v.Requirements, 6)

	s.Select("Billing")
	v, err = s.View(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Billing", v.Segment)
	assert.Len(t, v.Requirements, 3)

	s.Select("Nowhere")
	v, err = s.View(ctx)
	require.NoError(t, err)
	assert.Empty(t, v.Requirements)
	assert.Equal(t, model.CoverageSummary{}, v.Traceability.Summary)

	s.Select("")
	assert.Equal(t, model.AllSegments, s.Selected())
}

func TestSubscribe(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t)

	var mu sync.Mutex
	var changes []Change
	unsubscribe := s.Subscribe(func(c Change) {
		mu.Lock()
		defer mu.Unlock()
		changes = append(changes, c)
	})

	upload(t, s, "Auth")
	s.Select("Auth")
	_, err := s.EditRequirement(ctx, "A1_REQ-1", store.RequirementEdit{Title: strPtr("Sign in")})
	require.NoError(t, err)
	_, err = s.EditRequirement(ctx, "missing", store.RequirementEdit{Title: strPtr("Nope")})
	require.NoError(t, err)
	require.NoError(t, s.Reset(ctx))

	unsubscribe()
	s.Select("Auth")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Change{
		{Kind: ChangeMerge, Segment: "Auth"},
		{Kind: ChangeSelect, Segment: "Auth"},
		{Kind: ChangeEdit, ID: "A1_REQ-1"},
		{Kind: ChangeReset, Segment: model.AllSegments},
	}, changes)
}

func TestObserverSeesMergedStore(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t)

	var seen int
	obs := pipeline.Callbacks{OnComplete: func(model.Fragment) {
		v, err := s.Store().Filter(ctx, "Auth")
		if err == nil {
			seen = len(v.Requirements)
		}
	}}
	h, err := s.Upload(ctx, UploadRequest{Segment: "Auth", Files: []string{"a.txt"}}, obs)
	require.NoError(t, err)
	wait(t, h)
	assert.Equal(t, 3, seen)
}

func TestEditRequirementSyncsLinks(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t)
	upload(t, s, "Auth")

	found, err := s.EditRequirement(ctx, "A1_REQ-3", store.RequirementEdit{
		Title: strPtr("Account lockout"),
		Type:  strPtr("Non-Functional"),
	})
	require.NoError(t, err)
	require.True(t, found)

	v, err := s.View(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Account lockout", v.Requirements[2].Title)
	assert.Equal(t, "Non-Functional", v.Requirements[2].Type)
	assert.Equal(t, "Account lockout", v.Traceability.Links[2].RequirementTitle)
	assert.Equal(t, "Login", v.Traceability.Links[0].RequirementTitle)
}

func TestEditValidation(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t)
	upload(t, s, "Auth")
	before, err := s.Store().ExportAll(ctx)
	require.NoError(t, err)

	_, err = s.EditRequirement(ctx, "A1_REQ-1", store.RequirementEdit{Title: strPtr("  ")})
	assert.ErrorIs(t, err, ErrInvalidEdit)
	_, err = s.EditRequirement(ctx, "A1_REQ-1", store.RequirementEdit{Type: strPtr("Optional")})
	assert.ErrorIs(t, err, ErrInvalidEdit)
	_, err = s.EditRequirement(ctx, "A1_REQ-1", store.RequirementEdit{Statement: strPtr("")})
	assert.ErrorIs(t, err, ErrInvalidEdit)

	_, err = s.EditTestCase(ctx, "A1_TC-1", store.TestCaseEdit{Steps: []model.TestStep{{Number: 1, Action: "Go"}}})
	assert.ErrorIs(t, err, ErrInvalidEdit)
	_, err = s.EditTestCase(ctx, "A1_TC-1", store.TestCaseEdit{Steps: []model.TestStep{
		{Number: 1, Action: "a", ExpectedResult: "b"},
		{Number: 1, Action: "c", ExpectedResult: "d"},
	}})
	assert.ErrorIs(t, err, ErrInvalidEdit)
	_, err = s.EditTestCase(ctx, "A1_TC-1", store.TestCaseEdit{Steps: []model.TestStep{{Number: 0, Action: "a", ExpectedResult: "b"}}})
	assert.ErrorIs(t, err, ErrInvalidEdit)

	after, err := s.Store().ExportAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestEditUnknownIDIsSilent(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t)
	upload(t, s, "Auth")
	before, err := s.Store().ExportAll(ctx)
	require.NoError(t, err)

	found, err := s.EditTestCase(ctx, "TC-1", store.TestCaseEdit{Title: strPtr("Renamed")})
	require.NoError(t, err)
	assert.False(t, found)

	after, err := s.Store().ExportAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestResetClearsEverything(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t)
	upload(t, s, "Auth")
	s.Select("Auth")

	require.NoError(t, s.Reset(ctx))
	assert.Equal(t, model.AllSegments, s.Selected())

	snap, err := s.Store().ExportAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.Segments)
	assert.Empty(t, snap.Requirements)
	assert.Zero(t, snap.UploadCount)

	// Names are free again and ordinals restart.
	upload(t, s, "Auth")
	v, err := s.View(ctx)
	require.NoError(t, err)
	assert.Equal(t, "A1_REQ-1", v.Requirements[0].ID)
}

func TestEndToEndWithEmbeddedTemplate(t *testing.T) {
	ctx := context.Background()
	tmpl, err := fixture.Template()
	require.NoError(t, err)

	s := newTestSession(t)
	s.template = tmpl
	upload(t, s, "Customer Portal")

	v, err := s.View(ctx)
	require.NoError(t, err)
	assert.Len(t, v.Requirements, len(tmpl.Requirements))
	for _, tc := range v.TestCases {
		assert.True(t, strings.HasPrefix(tc.ID, "CP1_"), tc.ID)
	}
}
