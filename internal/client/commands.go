package client

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/datavtar/localfirst/internal/ai"
	"github.com/datavtar/localfirst/internal/apps"
	"github.com/datavtar/localfirst/internal/query"
	"github.com/datavtar/localfirst/internal/service"
	"github.com/datavtar/localfirst/internal/store"
	"github.com/datavtar/localfirst/internal/transfer"
	"github.com/spf13/cobra"
)

var offline = map[string]string{"offline": "true"}

func (c *CLI) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Show build version and date",
		Args:        cobra.NoArgs,
		Annotations: offline,
		Run: func(*cobra.Command, []string) {
			fmt.Fprintf(c.Out, "localfirst\nVersion: %s\nBuild Date: %s\n", cmp.Or(c.Version, "N/A"), cmp.Or(c.BuildDate, "N/A"))
		},
	}
}

func (c *CLI) appsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "apps",
		Short: "List apps and their collections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, a := range c.svc.Apps(cmd.Context()) {
				nameColor.Fprint(c.Out, a.Name)
				fmt.Fprintf(c.Out, "  %s\n", a.Title)
				for _, col := range a.Collections {
					fmt.Fprintf(c.Out, "  %-12s %d\n", col.Name, col.Count)
				}
			}
			return nil
		},
	}
}

func (c *CLI) listCommand() *cobra.Command {
	var offset, limit int
	cmd := &cobra.Command{
		Use:   "list <app> <collection> [key=value...]",
		Short: "Search, filter and sort a collection",
		Long: `Terms after the collection narrow the view:

  q=text            search
  sort=field        sort field
  dir=desc          sort direction
  f.field=a,b       field equals one of the values
  any.field=a,b     any element of field contains one of the terms
  min.field=n       lower numeric bound
  max.field=n       upper numeric bound`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := queryValues(args[2:])
			if err != nil {
				return err
			}
			page, err := c.svc.Query(cmd.Context(), args[0], args[1], query.ParseParams(values), offset, limit)
			if err != nil {
				return err
			}
			for _, it := range page.Items {
				b, err := json.Marshal(it)
				if err != nil {
					return err
				}
				fmt.Fprintln(c.Out, string(b))
			}
			nameColor.Fprintf(c.Out, "%d of %d\n", len(page.Items), page.Total)
			return nil
		},
	}
	cmd.Flags().IntVar(&offset, "offset", 0, "skip this many results")
	cmd.Flags().IntVar(&limit, "limit", 0, "show at most this many results (0 for all)")
	return cmd
}

// queryValues turns key=value terms into the parameters query.ParseParams
// reads.
func queryValues(terms []string) (url.Values, error) {
	values := url.Values{}
	for _, t := range terms {
		k, v, ok := strings.Cut(t, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid query term %q, want key=value", t)
		}
		values.Add(k, v)
	}
	return values, nil
}

func (c *CLI) getCommand() *cobra.Command {
	var expand bool
	cmd := &cobra.Command{
		Use:   "get <app> <collection> <id>",
		Short: "Show one entity",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			item, err := c.svc.Get(cmd.Context(), args[0], args[1], args[2], expand)
			if err != nil {
				return err
			}
			if expand {
				return c.printJSON(item)
			}
			return c.printJSON(item.Item)
		},
	}
	cmd.Flags().BoolVar(&expand, "expand", false, "resolve references to other collections")
	return cmd
}

func (c *CLI) addCommand() *cobra.Command {
	var raw, file string
	cmd := &cobra.Command{
		Use:   "add <app> <collection>",
		Short: "Create an entity from JSON or interactive prompts",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, coll := args[0], args[1]
			data, err := payload(raw, file)
			if err != nil {
				return err
			}
			if data == nil {
				cols, err := c.columns(ctx, app, coll)
				if err != nil {
					return err
				}
				if len(cols) > 0 {
					return c.addRow(ctx, app, coll, cols)
				}
				if data, err = c.prompt.Payload(); err != nil {
					return err
				}
			}
			v, err := c.svc.Create(ctx, app, coll, data)
			return c.reportMutation("added", v, err)
		},
	}
	cmd.Flags().StringVar(&raw, "json", "", "entity as a JSON object")
	cmd.Flags().StringVar(&file, "file", "", "read the JSON object from a file")
	return cmd
}

// addRow prompts for each column and imports the answers as a single
// delimited row, so cells are parsed the way a spreadsheet import would.
func (c *CLI) addRow(ctx context.Context, app, coll string, cols []string) error {
	res, err := c.svc.ImportCSV(ctx, app, coll, bytes.NewReader(c.prompt.Row(cols)), ',')
	if err != nil {
		return err
	}
	if res.Imported == 0 && len(res.Problems) > 0 {
		return res.Problems[0]
	}
	okColor.Fprintln(c.Out, "added")
	return nil
}

func (c *CLI) editCommand() *cobra.Command {
	var raw, file string
	cmd := &cobra.Command{
		Use:   "edit <app> <collection> <id>",
		Short: "Replace an entity",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := payload(raw, file)
			if err != nil {
				return err
			}
			if data == nil {
				current, err := c.svc.Get(cmd.Context(), args[0], args[1], args[2], false)
				if err == nil {
					_ = c.printJSON(current.Item)
				}
				if data, err = c.prompt.Payload(); err != nil {
					return err
				}
			}
			v, err := c.svc.Update(cmd.Context(), args[0], args[1], args[2], data)
			return c.reportMutation("updated", v, err)
		},
	}
	cmd.Flags().StringVar(&raw, "json", "", "entity as a JSON object")
	cmd.Flags().StringVar(&file, "file", "", "read the JSON object from a file")
	return cmd
}

func (c *CLI) deleteCommand() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <app> <collection> <id>",
		Short: "Delete an entity",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes && !c.prompt.Confirm(fmt.Sprintf("Delete %s from %s/%s?", args[2], args[0], args[1])) {
				warnColor.Fprintln(c.Out, "cancelled")
				return nil
			}
			if err := c.svc.Delete(cmd.Context(), args[0], args[1], args[2]); err != nil {
				return err
			}
			okColor.Fprintln(c.Out, "deleted")
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func (c *CLI) exportCommand() *cobra.Command {
	var format, output string
	cmd := &cobra.Command{
		Use:   "export <app> [collection]",
		Short: "Back up an app, or one collection as JSON or CSV",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var buf bytes.Buffer
			if len(args) == 1 {
				doc, name, err := c.svc.Export(ctx, args[0])
				if err != nil {
					return err
				}
				if err := transfer.WriteDocument(&buf, doc); err != nil {
					return err
				}
				return c.write(output, name, buf.Bytes())
			}
			name, err := c.svc.ExportCollection(ctx, args[0], args[1], transfer.ParseFormat(format), &buf)
			if err != nil {
				return err
			}
			return c.write(output, name, buf.Bytes())
		},
	}
	cmd.Flags().StringVar(&format, "format", "json", "collection format: json|csv")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file, - for stdout (default: a dated file name)")
	return cmd
}

func (c *CLI) templateCommand() *cobra.Command {
	var format, output string
	cmd := &cobra.Command{
		Use:   "template <app> <collection>",
		Short: "Write an example import file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, name, err := c.svc.Template(cmd.Context(), args[0], args[1], transfer.ParseFormat(format))
			if err != nil {
				return err
			}
			return c.write(output, name, b)
		},
	}
	cmd.Flags().StringVar(&format, "format", "json", "json|csv")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file, - for stdout (default: a dated file name)")
	return cmd
}

func (c *CLI) importCommand() *cobra.Command {
	var delim string
	cmd := &cobra.Command{
		Use:   "import <app> [collection] <file>",
		Short: "Import a backup, a JSON array or a CSV file",
		Long: `A .csv or .tsv file is read as delimited text into the named collection.
Anything else is read as JSON: a backup document, or a bare array when a
collection is named. Invalid records are skipped and reported.`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, path := args[0], args[len(args)-1]
			coll := ""
			if len(args) == 3 {
				coll = args[1]
			}

			var (
				res transfer.Result
				err error
			)
			switch ext := strings.ToLower(filepath.Ext(path)); ext {
			case ".csv", ".tsv":
				if coll == "" {
					return fmt.Errorf("a collection is required to import %s files", ext)
				}
				sep, err := parseDelim(delim, ext)
				if err != nil {
					return err
				}
				f, err := os.Open(path)
				if err != nil {
					return err
				}
				defer f.Close()
				res, err = c.svc.ImportCSV(ctx, app, coll, f, sep)
				c.printResult(res)
				return err
			default:
				data, rerr := os.ReadFile(path)
				if rerr != nil {
					return rerr
				}
				res, err = c.svc.Import(ctx, app, coll, data)
			}
			c.printResult(res)
			return err
		},
	}
	cmd.Flags().StringVar(&delim, "delim", "", `cell delimiter, e.g. ";" or "\t" (default "," or tab for .tsv)`)
	return cmd
}

func parseDelim(s, ext string) (rune, error) {
	switch s {
	case "":
		if ext == ".tsv" {
			return '\t', nil
		}
		return ',', nil
	case `\t`, "tab":
		return '\t', nil
	}
	r, size := utf8.DecodeRuneInString(s)
	if size != len(s) {
		return 0, fmt.Errorf("delimiter must be a single character, got %q", s)
	}
	return r, nil
}

func (c *CLI) resetCommand() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset <app>",
		Short: "Delete all data of an app and restore its defaults",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes && !c.prompt.Confirm(fmt.Sprintf("Reset %s? All of its data is deleted.", args[0])) {
				warnColor.Fprintln(c.Out, "cancelled")
				return nil
			}
			if err := c.svc.Reset(cmd.Context(), args[0]); err != nil {
				return err
			}
			okColor.Fprintf(c.Out, "%s reset\n", args[0])
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func (c *CLI) settingsCommand() *cobra.Command {
	var set string
	cmd := &cobra.Command{
		Use:   "settings <app>",
		Short: "Show or replace the settings of an app",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if set != "" {
				var v apps.Settings
				if err := json.Unmarshal([]byte(set), &v); err != nil {
					return &transfer.ParseError{Format: string(transfer.FormatJSON), Err: err}
				}
				if err := c.svc.SaveSettings(ctx, args[0], v); err != nil {
					return err
				}
			}
			v, err := c.svc.Settings(ctx, args[0])
			if err != nil {
				return err
			}
			return c.printJSON(v)
		},
	}
	cmd.Flags().StringVar(&set, "set", "", "replace the settings with this JSON object")
	return cmd
}

func (c *CLI) extractCommand() *cobra.Command {
	var prompt, file string
	var save bool
	cmd := &cobra.Command{
		Use:   "extract <app> <collection>",
		Short: "Ask the AI service to draft an entity from text or a file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			att, err := readAttachment(file)
			if err != nil {
				return err
			}
			if prompt == "" && att == nil {
				return fmt.Errorf("a --prompt or a --file is required")
			}
			ex, err := c.svc.Extract(ctx, args[0], args[1], prompt, att)
			if err != nil {
				return err
			}
			if ex.Draft == nil || reflect.ValueOf(ex.Draft).IsZero() {
				warnColor.Fprintln(c.Out, "the answer was not an entity:")
				fmt.Fprintln(c.Out, ex.Text)
				return nil
			}
			if !save {
				return c.printJSON(ex.Draft)
			}
			raw, err := json.Marshal(ex.Draft)
			if err != nil {
				return err
			}
			v, err := c.svc.Create(ctx, args[0], args[1], raw)
			return c.reportMutation("added", v, err)
		},
	}
	cmd.Flags().StringVarP(&prompt, "prompt", "p", "", "instructions for the AI service")
	cmd.Flags().StringVarP(&file, "file", "f", "", "attach a file, e.g. a photo or a PDF")
	cmd.Flags().BoolVar(&save, "save", false, "create the drafted entity")
	return cmd
}

func (c *CLI) askCommand() *cobra.Command {
	var file, output string
	cmd := &cobra.Command{
		Use:   "ask <prompt...>",
		Short: "Ask the AI service a free-form question (Ctrl-C cancels)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.completer == nil {
				return &service.AIError{Message: ai.Message(ai.ErrNotConfigured), Err: ai.ErrNotConfigured}
			}
			att, err := readAttachment(file)
			if err != nil {
				return err
			}
			req := ai.Request{Prompt: strings.Join(args, " "), Attachment: att, Output: ai.Output(output)}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			type outcome struct {
				resp ai.Response
				err  error
			}
			done := make(chan outcome, 1)
			cancel := ai.Go(ctx, c.completer, req, func(resp ai.Response, err error) {
				done <- outcome{resp, err}
			})
			defer cancel()

			select {
			case <-ctx.Done():
				cancel()
				warnColor.Fprintln(c.Out, "cancelled")
				return nil
			case o := <-done:
				if o.err != nil {
					return &service.AIError{Message: ai.Message(o.err), Err: o.err}
				}
				if o.resp.Text == "" && o.resp.JSON != nil {
					fmt.Fprintln(c.Out, string(o.resp.JSON))
					return nil
				}
				fmt.Fprintln(c.Out, o.resp.Text)
				return nil
			}
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "attach a file")
	cmd.Flags().StringVar(&output, "output", string(ai.OutputString), "answer shape: string|code|json")
	return cmd
}

func (c *CLI) shellCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Run commands interactively on one opened medium",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for {
				line, ok := c.prompt.Line("localfirst> ")
				if !ok {
					return nil
				}
				args, err := splitArgs(line)
				if err != nil {
					PrintError(c.Err, err)
					continue
				}
				if len(args) == 0 {
					continue
				}
				switch args[0] {
				case "exit", "quit":
					fmt.Fprintln(c.Out, "Bye")
					return nil
				case "shell":
					fmt.Fprintln(c.Out, "Already in the shell.")
					continue
				}
				if err := c.run(cmd.Context(), args); err != nil {
					PrintError(c.Err, err)
				}
			}
		},
	}
}

// splitArgs splits a shell line on blanks, keeping single or double quoted
// text together.
func splitArgs(line string) ([]string, error) {
	var (
		args  []string
		cur   strings.Builder
		quote rune
		inArg bool
	)
	for _, r := range line {
		switch {
		case quote != 0 && r == quote:
			quote = 0
		case quote != 0:
			cur.WriteRune(r)
		case r == '"' || r == '\'':
			quote, inArg = r, true
		case r == ' ' || r == '\t':
			if inArg {
				args = append(args, cur.String())
				cur.Reset()
				inArg = false
			}
		default:
			cur.WriteRune(r)
			inArg = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated %c quote", quote)
	}
	if inArg {
		args = append(args, cur.String())
	}
	return args, nil
}

// columns returns the delimited columns of a collection, or nil when it has
// no delimited form.
func (c *CLI) columns(ctx context.Context, app, coll string) ([]string, error) {
	for _, a := range c.svc.Apps(ctx) {
		if a.Name != app {
			continue
		}
		for _, col := range a.Collections {
			if col.Name == coll {
				return col.Columns, nil
			}
		}
		return nil, fmt.Errorf("%w: collection %q in %s", store.ErrNotFound, coll, app)
	}
	return nil, fmt.Errorf("%w: app %q", store.ErrNotFound, app)
}

// reportMutation prints the stored entity. When only the write to the
// medium failed the entity is still shown before the error.
func (c *CLI) reportMutation(verb string, v any, err error) error {
	if v != nil {
		if perr := c.printJSON(v); perr != nil {
			return perr
		}
	}
	if err != nil {
		return err
	}
	okColor.Fprintln(c.Out, verb)
	return nil
}

func (c *CLI) printResult(res transfer.Result) {
	okColor.Fprintf(c.Out, "imported %d, skipped %d\n", res.Imported, res.Skipped)
	names := make([]string, 0, len(res.Collections))
	for name := range res.Collections {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		n := res.Collections[name]
		fmt.Fprintf(c.Out, "  %s: imported %d, skipped %d\n", name, n.Imported, n.Skipped)
	}
	if res.Settings {
		fmt.Fprintln(c.Out, "  settings restored")
	}
	for _, p := range res.Problems {
		warnColor.Fprintf(c.Out, "  %s\n", p.Error())
	}
}

func (c *CLI) printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(c.Out, string(b))
	return nil
}

// write stores data at path, a dated default name when path is empty, or
// stdout for "-".
func (c *CLI) write(path, name string, data []byte) error {
	if path == "-" {
		_, err := c.Out.Write(data)
		return err
	}
	path = cmp.Or(path, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	okColor.Fprintf(c.Out, "wrote %s\n", path)
	return nil
}

func payload(raw, file string) ([]byte, error) {
	switch {
	case raw != "":
		return []byte(raw), nil
	case file != "":
		return os.ReadFile(file)
	}
	return nil, nil
}

func readAttachment(path string) (*ai.Attachment, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	ct := mime.TypeByExtension(filepath.Ext(path))
	if ct == "" {
		ct = http.DetectContentType(data)
	}
	return &ai.Attachment{Name: filepath.Base(path), ContentType: ct, Data: data}, nil
}
