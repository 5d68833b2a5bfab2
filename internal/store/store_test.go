package store_test

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/wesm/glider/internal/analysis"
	"github.com/wesm/glider/internal/oauth"
	"github.com/wesm/glider/internal/store"
	"github.com/wesm/glider/internal/testutil"
)

var ctx = context.Background()

func okResult(id string) analysis.Result {
	deadline := "2024-02-01"
	return analysis.Result{
		EmailID: id,
		Analysis: analysis.Analysis{
			ActionItems: []analysis.ActionItem{{
				Description:   "Send the report",
				Priority:      analysis.PriorityHigh,
				EstimatedTime: "30 minutes",
				Category:      analysis.CategoryTask,
				Deadline:      &deadline,
			}},
			HasActionItems:    true,
			RecommendedAction: analysis.ActionReply,
			Reason:            "Sender is waiting on a reply.",
			Confidence:        analysis.ConfidenceHigh,
			SuggestedDetails:  analysis.Details{KeyPoints: []string{"report"}},
			Sentiment:         analysis.SentimentUrgent,
			Summary:           "Report request",
		},
	}
}

func TestStore_OpenRejectsPostgres(t *testing.T) {
	if _, err := store.Open("postgres://localhost/glider"); err == nil {
		t.Fatal("expected error for postgres URL")
	}
}

func TestStore_GetStats_Empty(t *testing.T) {
	st := testutil.NewTestStore(t)

	stats, err := st.GetStats(ctx)
	testutil.MustNoErr(t, err, "GetStats")
	if stats.EmailCount != 0 || stats.AnalysisCount != 0 || stats.OwnerCount != 0 {
		t.Errorf("stats = %+v, want zero counts", stats)
	}
}

func TestStore_InitSchemaIdempotent(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "glider.db"))
	testutil.MustNoErr(t, err, "Open")
	defer st.Close()

	for i := 0; i < 2; i++ {
		testutil.MustNoErr(t, st.InitSchema(), "InitSchema")
	}
}

func TestStore_Credentials(t *testing.T) {
	st := testutil.NewTestStore(t)

	got, err := st.LoadCredential(ctx, "a@example.com")
	testutil.MustNoErr(t, err, "LoadCredential(missing)")
	if got != nil {
		t.Fatalf("LoadCredential(missing) = %+v, want nil", got)
	}

	expiry := time.Date(2024, 6, 1, 13, 0, 0, 0, time.UTC)
	want := oauth.CredentialSet{AccessToken: "at", RefreshToken: "rt", Expiry: expiry}
	testutil.MustNoErr(t, st.SaveCredential(ctx, "a@example.com", want), "SaveCredential")

	got, err = st.LoadCredential(ctx, "a@example.com")
	testutil.MustNoErr(t, err, "LoadCredential")
	if got == nil || got.AccessToken != "at" || got.RefreshToken != "rt" || !got.Expiry.Equal(expiry) {
		t.Fatalf("LoadCredential = %+v, want %+v", got, want)
	}

	// Upsert replaces.
	want.AccessToken = "at2"
	testutil.MustNoErr(t, st.SaveCredential(ctx, "a@example.com", want), "SaveCredential(update)")
	got, _ = st.LoadCredential(ctx, "a@example.com")
	if got.AccessToken != "at2" {
		t.Errorf("AccessToken = %q, want at2", got.AccessToken)
	}

	testutil.SeedCredential(t, st, "b@example.com")
	owners, err := st.ListOwners(ctx)
	testutil.MustNoErr(t, err, "ListOwners")
	testutil.AssertStrings(t, owners, "a@example.com", "b@example.com")

	testutil.MustNoErr(t, st.DeleteCredential(ctx, "a@example.com"), "DeleteCredential")
	got, _ = st.LoadCredential(ctx, "a@example.com")
	if got != nil {
		t.Errorf("credential still present after delete: %+v", got)
	}
}

func TestStore_CredentialWithoutExpiry(t *testing.T) {
	st := testutil.NewTestStore(t)

	testutil.MustNoErr(t, st.SaveCredential(ctx, "u", oauth.CredentialSet{AccessToken: "at", RefreshToken: "rt"}), "SaveCredential")
	got, err := st.LoadCredential(ctx, "u")
	testutil.MustNoErr(t, err, "LoadCredential")
	if !got.Expiry.IsZero() {
		t.Errorf("Expiry = %v, want zero", got.Expiry)
	}
}

func TestStore_SaveAndLoadEmails(t *testing.T) {
	st := testutil.NewTestStore(t)
	emails := testutil.Emails(3)
	emails[1].CcEmails = []string{"cc@example.com"}
	emails[2].IsRead = false

	testutil.SeedEmails(t, st, "owner", emails[2], emails[0], emails[1])

	got, err := st.LoadCachedEmails(ctx, "owner", 10)
	testutil.MustNoErr(t, err, "LoadCachedEmails")
	if diff := cmp.Diff(emails, got); diff != "" {
		t.Errorf("LoadCachedEmails mismatch (-want +got):\n%s", diff)
	}

	limited, err := st.LoadCachedEmails(ctx, "owner", 2)
	testutil.MustNoErr(t, err, "LoadCachedEmails(limit)")
	if len(limited) != 2 || limited[0].ID != "e00" {
		t.Errorf("limited = %d emails starting %q", len(limited), limited[0].ID)
	}

	other, err := st.LoadCachedEmails(ctx, "someone-else", 10)
	testutil.MustNoErr(t, err, "LoadCachedEmails(other owner)")
	if len(other) != 0 {
		t.Errorf("other owner sees %d emails", len(other))
	}

	n, err := st.CountEmails(ctx, "owner")
	testutil.MustNoErr(t, err, "CountEmails")
	if n != 3 {
		t.Errorf("CountEmails = %d, want 3", n)
	}
}

func TestStore_SaveEmailsUpsert(t *testing.T) {
	st := testutil.NewTestStore(t)
	e := testutil.NewEmail("e1").Subject("before").Build()
	testutil.SeedEmails(t, st, "owner", e)

	e.Subject = "after"
	testutil.SeedEmails(t, st, "owner", e)

	got, err := st.LoadCachedEmails(ctx, "owner", 10)
	testutil.MustNoErr(t, err, "LoadCachedEmails")
	if len(got) != 1 || got[0].Subject != "after" {
		t.Errorf("got %d emails, subject %q", len(got), got[0].Subject)
	}
}

func TestStore_UnanalyzedAndResults(t *testing.T) {
	st := testutil.NewTestStore(t)
	testutil.SeedEmails(t, st, "owner", testutil.Emails(4)...)

	failed := analysis.Result{EmailID: "e01", Error: "boom"}
	err := st.SaveAnalysisResults(ctx, "owner", []analysis.Result{okResult("e00"), failed, okResult("e03")}, "test-model")
	testutil.MustNoErr(t, err, "SaveAnalysisResults")

	pending, err := st.LoadUnanalyzed(ctx, "owner", 50)
	testutil.MustNoErr(t, err, "LoadUnanalyzed")
	var ids []string
	for _, e := range pending {
		ids = append(ids, e.ID)
	}
	testutil.AssertStrings(t, ids, "e01", "e02")

	n, err := st.CountUnanalyzed(ctx, "owner")
	testutil.MustNoErr(t, err, "CountUnanalyzed")
	if n != 2 {
		t.Errorf("CountUnanalyzed = %d, want 2", n)
	}

	stored, err := st.LoadAnalyses(ctx, "owner", 50)
	testutil.MustNoErr(t, err, "LoadAnalyses")
	if len(stored) != 2 {
		t.Fatalf("LoadAnalyses = %d rows, want 2", len(stored))
	}
	for _, sa := range stored {
		if sa.ModelVersion != "test-model" {
			t.Errorf("%s model version = %q", sa.EmailID, sa.ModelVersion)
		}
		if diff := cmp.Diff(okResult(sa.EmailID).Analysis, sa.Analysis); diff != "" {
			t.Errorf("%s analysis mismatch (-want +got):\n%s", sa.EmailID, diff)
		}
	}
}

func TestStore_SaveAnalysisResultsUpsert(t *testing.T) {
	st := testutil.NewTestStore(t)
	testutil.SeedEmails(t, st, "owner", testutil.Emails(1)...)

	first := okResult("e00")
	testutil.MustNoErr(t, st.SaveAnalysisResults(ctx, "owner", []analysis.Result{first}, "v1"), "save v1")

	second := okResult("e00")
	second.Analysis.Summary = "Updated"
	second.Analysis.ActionItems = nil
	testutil.MustNoErr(t, st.SaveAnalysisResults(ctx, "owner", []analysis.Result{second}, "v2"), "save v2")

	stored, err := st.LoadAnalyses(ctx, "owner", 10)
	testutil.MustNoErr(t, err, "LoadAnalyses")
	if len(stored) != 1 {
		t.Fatalf("rows = %d, want 1", len(stored))
	}
	if stored[0].Analysis.Summary != "Updated" || stored[0].ModelVersion != "v2" {
		t.Errorf("stored = %+v", stored[0])
	}
	if stored[0].Analysis.ActionItems == nil || len(stored[0].Analysis.ActionItems) != 0 {
		t.Errorf("ActionItems = %#v, want empty slice", stored[0].Analysis.ActionItems)
	}
}

func TestStore_Dashboard(t *testing.T) {
	st := testutil.NewTestStore(t)
	testutil.SeedEmails(t, st, "owner", testutil.Emails(3)...)
	testutil.MustNoErr(t, st.SaveAnalysisResults(ctx, "owner", []analysis.Result{okResult("e01")}, "m"), "SaveAnalysisResults")

	d, err := st.Dashboard(ctx, "owner", 50)
	testutil.MustNoErr(t, err, "Dashboard")
	if d.Total != 3 || d.Analyzed != 1 {
		t.Errorf("Total/Analyzed = %d/%d, want 3/1", d.Total, d.Analyzed)
	}
	for _, e := range d.Emails {
		hasAnalysis := e.Analysis != nil
		if hasAnalysis != (e.ID == "e01") {
			t.Errorf("%s has analysis = %v", e.ID, hasAnalysis)
		}
	}
}

func TestOpen_DatabaseIsPrivate(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("mode bits are not meaningful on Windows")
	}
	dir := filepath.Join(t.TempDir(), "data")
	path := filepath.Join(dir, "glider.db")

	st, err := store.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	for p, want := range map[string]os.FileMode{dir: 0700, path: 0600} {
		info, err := os.Stat(p)
		if err != nil {
			t.Fatalf("Stat(%s): %v", p, err)
		}
		if got := info.Mode().Perm(); got&^want != 0 {
			t.Errorf("%s perm = %04o, want at most %04o", p, got, want)
		}
	}
}
