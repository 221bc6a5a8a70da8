package client

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/datavtar/localfirst/internal/ai"
	"github.com/datavtar/localfirst/internal/service"
	"github.com/datavtar/localfirst/internal/store"
	"github.com/fatih/color"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

type mockCompleter struct {
	CompleteFunc func(ctx context.Context, req ai.Request) (ai.Response, error)
}

func (m *mockCompleter) Complete(ctx context.Context, req ai.Request) (ai.Response, error) {
	return m.CompleteFunc(ctx, req)
}

// runCLI executes one command line against a file medium in dir.
func runCLI(t *testing.T, dir, input string, comp ai.Completer, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut strings.Builder
	cli := New(strings.NewReader(input), &out, &errOut)
	cli.Completer = comp
	err := cli.Execute(context.Background(), append([]string{"--medium", "file", "--data", dir}, args...))
	return out.String(), errOut.String(), err
}

func mustRun(t *testing.T, dir string, args ...string) string {
	t.Helper()
	out, _, err := runCLI(t, dir, "", nil, args...)
	if err != nil {
		t.Fatalf("%v returned error: %v", args, err)
	}
	return out
}

func TestCLI_Version(t *testing.T) {
	var out strings.Builder
	cli := New(strings.NewReader(""), &out, &out)
	cli.Version = "1.2.3"
	// No medium flags: version never opens one.
	if err := cli.Execute(context.Background(), []string{"version", "--medium", "floppy"}); err != nil {
		t.Fatalf("version returned error: %v", err)
	}
	if !strings.Contains(out.String(), "Version: 1.2.3") || !strings.Contains(out.String(), "Build Date: N/A") {
		t.Errorf("version output = %q", out.String())
	}
}

func TestCLI_AppsAndSearch(t *testing.T) {
	dir := t.TempDir()

	out := mustRun(t, dir, "apps")
	for _, want := range []string{"recipes", "mealPlans", "shop", "fleet", "shipments"} {
		if !strings.Contains(out, want) {
			t.Errorf("apps output lacks %q:\n%s", want, out)
		}
	}

	out = mustRun(t, dir, "list", "recipes", "recipes", "q=curry")
	if !strings.Contains(out, `"id":"sample-curry"`) || strings.Contains(out, "sample-toast") {
		t.Errorf("search output = %q", out)
	}
	if !strings.HasSuffix(out, "1 of 1\n") {
		t.Errorf("search summary missing: %q", out)
	}

	out = mustRun(t, dir, "list", "recipes", "recipes", "sort=cookTime", "--limit", "1")
	if !strings.Contains(out, "sample-toast") || !strings.HasSuffix(out, "1 of 2\n") {
		t.Errorf("sorted page = %q", out)
	}

	if _, _, err := runCLI(t, dir, "", nil, "list", "recipes", "recipes", "curry"); err == nil {
		t.Error("a term without = was accepted")
	}
	if _, _, err := runCLI(t, dir, "", nil, "list", "recipes", "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("unknown collection error = %v; want ErrNotFound", err)
	}
}

func TestCLI_AddInteractive(t *testing.T) {
	dir := t.TempDir()
	answers := "Pancakes\nAmerican\nBreakfast\n15\n2\nEasy\nflour;eggs;milk\nsweet\nMix and fry.\n"

	out, _, err := runCLI(t, dir, answers, nil, "add", "recipes", "recipes")
	if err != nil {
		t.Fatalf("add returned error: %v", err)
	}
	if !strings.Contains(out, "Enter title: ") || strings.Contains(out, "Enter id: ") {
		t.Errorf("prompts = %q", out)
	}

	out = mustRun(t, dir, "list", "recipes", "recipes", "any.ingredients=eggs")
	if !strings.Contains(out, `"title":"Pancakes"`) || !strings.Contains(out, `"cookTime":15`) {
		t.Errorf("added recipe not found: %q", out)
	}
}

func TestCLI_AddInteractiveRejectsMissingTitle(t *testing.T) {
	dir := t.TempDir()
	_, _, err := runCLI(t, dir, strings.Repeat("\n", 9), nil, "add", "recipes", "recipes")
	if err == nil || !strings.Contains(err.Error(), "title") {
		t.Errorf("add without title error = %v", err)
	}
}

func TestCLI_EditAndGet(t *testing.T) {
	dir := t.TempDir()

	out := mustRun(t, dir, "edit", "recipes", "recipes", "sample-toast", "--json", `{"title":"Better Toast","cookTime":7}`)
	if !strings.Contains(out, "updated") {
		t.Errorf("edit output = %q", out)
	}
	out = mustRun(t, dir, "get", "recipes", "recipes", "sample-toast")
	if !strings.Contains(out, `"title": "Better Toast"`) {
		t.Errorf("get output = %q", out)
	}

	_, _, err := runCLI(t, dir, "", nil, "add", "recipes", "mealPlans", "--json", `{"date":`)
	if err == nil {
		t.Error("malformed JSON was accepted")
	}
}

func TestCLI_DeleteAsksForConfirmation(t *testing.T) {
	dir := t.TempDir()

	out, _, err := runCLI(t, dir, "n\n", nil, "delete", "recipes", "recipes", "sample-curry")
	if err != nil || !strings.Contains(out, "cancelled") {
		t.Fatalf("declined delete = %q, %v", out, err)
	}
	mustRun(t, dir, "get", "recipes", "recipes", "sample-curry")

	out, _, err = runCLI(t, dir, "yes\n", nil, "delete", "recipes", "recipes", "sample-curry")
	if err != nil || !strings.Contains(out, "deleted") {
		t.Fatalf("confirmed delete = %q, %v", out, err)
	}
	if _, _, err := runCLI(t, dir, "", nil, "get", "recipes", "recipes", "sample-curry"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("get after delete = %v; want ErrNotFound", err)
	}

	// Deleting again is not an error.
	mustRun(t, dir, "delete", "recipes", "recipes", "sample-curry", "--yes")
}

func TestCLI_ExportResetImport(t *testing.T) {
	dir := t.TempDir()
	backup := filepath.Join(t.TempDir(), "backup.json")

	mustRun(t, dir, "edit", "recipes", "recipes", "sample-toast", "--json", `{"title":"Toast Deluxe"}`)
	out := mustRun(t, dir, "export", "recipes", "-o", backup)
	if !strings.Contains(out, "wrote "+backup) {
		t.Errorf("export output = %q", out)
	}

	out, _, err := runCLI(t, dir, "\n", nil, "reset", "recipes")
	if err != nil || !strings.Contains(out, "cancelled") {
		t.Fatalf("unconfirmed reset = %q, %v", out, err)
	}
	out = mustRun(t, dir, "reset", "recipes", "--yes")
	if !strings.Contains(out, "recipes reset") {
		t.Errorf("reset output = %q", out)
	}
	if out := mustRun(t, dir, "get", "recipes", "recipes", "sample-toast"); !strings.Contains(out, "Avocado Toast") {
		t.Errorf("reset did not restore the sample: %q", out)
	}

	out = mustRun(t, dir, "import", "recipes", backup)
	if !strings.Contains(out, "imported 2, skipped 0") || !strings.Contains(out, "settings restored") {
		t.Errorf("import output = %q", out)
	}
	out = mustRun(t, dir, "list", "recipes", "recipes")
	if !strings.Contains(out, "Toast Deluxe") || !strings.HasSuffix(out, "4 of 4\n") {
		t.Errorf("recipes after import = %q", out)
	}
}

func TestCLI_ImportCSV(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(t.TempDir(), "recipes.csv")
	data := "id,title,cuisine,category,cookTime,servings,difficulty,ingredients,tags,instructions\n" +
		",Ramen,Japanese,Dinner,40,2,Hard,noodles;broth,,Simmer.\n" +
		",,Nowhere,,,,,,,\n"
	if err := os.WriteFile(csvPath, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, _, err := runCLI(t, dir, "", nil, "import", "recipes", csvPath); err == nil {
		t.Error("csv import without a collection was accepted")
	}

	out := mustRun(t, dir, "import", "recipes", "recipes", csvPath)
	if !strings.Contains(out, "imported 1, skipped 1") || !strings.Contains(out, "title: required field missing") {
		t.Errorf("csv import output = %q", out)
	}
}

func TestCLI_TemplateToStdout(t *testing.T) {
	out := mustRun(t, t.TempDir(), "template", "recipes", "recipes", "--format", "csv", "-o", "-")
	if !strings.HasPrefix(out, "id,title,cuisine,category,cookTime") || !strings.Contains(out, "Tomato Soup") {
		t.Errorf("template = %q", out)
	}
}

func TestCLI_Settings(t *testing.T) {
	dir := t.TempDir()
	mustRun(t, dir, "settings", "shop", "--set", `{"title":"Corner Shop","currency":"EUR"}`)
	out := mustRun(t, dir, "settings", "shop")
	if !strings.Contains(out, `"currency": "EUR"`) || !strings.Contains(out, "Corner Shop") {
		t.Errorf("settings = %q", out)
	}
}

func TestCLI_Ask(t *testing.T) {
	dir := t.TempDir()

	if _, _, err := runCLI(t, dir, "", nil, "ask", "hello"); err == nil {
		t.Error("ask without AI configuration succeeded")
	} else if Describe(err) != ai.Message(ai.ErrNotConfigured) {
		t.Errorf("Describe = %q", Describe(err))
	}

	var got ai.Request
	comp := &mockCompleter{CompleteFunc: func(_ context.Context, req ai.Request) (ai.Response, error) {
		got = req
		return ai.Response{Text: "Use less salt."}, nil
	}}
	out, _, err := runCLI(t, dir, "", comp, "ask", "how", "to", "fix", "soup")
	if err != nil {
		t.Fatalf("ask returned error: %v", err)
	}
	if got.Prompt != "how to fix soup" || got.Output != ai.OutputString {
		t.Errorf("request = %+v", got)
	}
	if strings.TrimSpace(out) != "Use less salt." {
		t.Errorf("ask output = %q", out)
	}

	failing := &mockCompleter{CompleteFunc: func(context.Context, ai.Request) (ai.Response, error) {
		return ai.Response{}, &ai.NetworkError{Status: 503, Detail: "busy"}
	}}
	_, _, err = runCLI(t, dir, "", failing, "ask", "hi")
	var aiErr *service.AIError
	if !errors.As(err, &aiErr) || !strings.Contains(aiErr.Message, "503") {
		t.Errorf("ask error = %v; want AIError with status", err)
	}
}

func TestCLI_Extract(t *testing.T) {
	dir := t.TempDir()
	card := filepath.Join(t.TempDir(), "card.txt")
	if err := os.WriteFile(card, []byte("Pho: noodles, broth"), 0o644); err != nil {
		t.Fatal(err)
	}
	comp := &mockCompleter{CompleteFunc: func(_ context.Context, req ai.Request) (ai.Response, error) {
		if req.Attachment == nil || req.Attachment.Name != "card.txt" {
			t.Errorf("attachment = %+v", req.Attachment)
		}
		return ai.Response{JSON: []byte(`{"title":"Pho","cuisine":"Vietnamese"}`)}, nil
	}}

	out, _, err := runCLI(t, dir, "", comp, "extract", "recipes", "recipes", "--file", card, "--save")
	if err != nil {
		t.Fatalf("extract returned error: %v", err)
	}
	if !strings.Contains(out, `"title": "Pho"`) || !strings.Contains(out, "added") {
		t.Errorf("extract output = %q", out)
	}
	if out := mustRun(t, dir, "list", "recipes", "recipes", "q=pho"); !strings.HasSuffix(out, "1 of 1\n") {
		t.Errorf("saved draft not listed: %q", out)
	}

	chatty := &mockCompleter{CompleteFunc: func(context.Context, ai.Request) (ai.Response, error) {
		return ai.Response{Text: "That is not a recipe.", Raw: true}, nil
	}}
	out, _, err = runCLI(t, dir, "", chatty, "extract", "recipes", "recipes", "-p", "read this", "--save")
	if err != nil || !strings.Contains(out, "That is not a recipe.") || strings.Contains(out, "added") {
		t.Errorf("raw answer = %q, %v", out, err)
	}
}

func TestCLI_Shell(t *testing.T) {
	dir := t.TempDir()
	input := strings.Join([]string{
		"apps",
		"",
		`edit recipes recipes sample-toast --json '{"title":"Shell Toast"}'`,
		"delete recipes recipes sample-curry",
		"n",
		"bogus",
		"list recipes recipes q=toast",
		"exit",
		"list recipes recipes",
	}, "\n") + "\n"

	out, errOut, err := runCLI(t, dir, input, nil, "shell")
	if err != nil {
		t.Fatalf("shell returned error: %v", err)
	}
	for _, want := range []string{"localfirst> ", "Storefront", "updated", "cancelled", "Shell Toast", "Bye"} {
		if !strings.Contains(out, want) {
			t.Errorf("shell output lacks %q:\n%s", want, out)
		}
	}
	if !strings.Contains(errOut, `unknown command "bogus"`) {
		t.Errorf("shell errors = %q", errOut)
	}
	if strings.Count(out, "localfirst> ") != 7 {
		t.Errorf("commands after exit were run:\n%s", out)
	}
}

func TestSplitArgs(t *testing.T) {
	cases := []struct {
		line string
		want []string
		err  bool
	}{
		{line: "", want: nil},
		{line: "  list  recipes\trecipes ", want: []string{"list", "recipes", "recipes"}},
		{line: `add a b --json '{"title":"Two Words"}'`, want: []string{"add", "a", "b", "--json", `{"title":"Two Words"}`}},
		{line: `ask "what's up"`, want: []string{"ask", "what's up"}},
		{line: `x ""`, want: []string{"x", ""}},
		{line: `ask "open`, err: true},
	}
	for _, tc := range cases {
		got, err := splitArgs(tc.line)
		if tc.err {
			if err == nil {
				t.Errorf("splitArgs(%q) succeeded", tc.line)
			}
			continue
		}
		if err != nil {
			t.Errorf("splitArgs(%q) returned %v", tc.line, err)
			continue
		}
		if strings.Join(got, "|") != strings.Join(tc.want, "|") || len(got) != len(tc.want) {
			t.Errorf("splitArgs(%q) = %q; want %q", tc.line, got, tc.want)
		}
	}
}

func TestParseDelim(t *testing.T) {
	cases := []struct {
		in, ext string
		want    rune
		err     bool
	}{
		{"", ".csv", ',', false},
		{"", ".tsv", '\t', false},
		{`\t`, ".csv", '\t', false},
		{";", ".csv", ';', false},
		{";;", ".csv", 0, true},
	}
	for _, tc := range cases {
		got, err := parseDelim(tc.in, tc.ext)
		if (err != nil) != tc.err || got != tc.want {
			t.Errorf("parseDelim(%q, %q) = %q, %v", tc.in, tc.ext, got, err)
		}
	}
}
