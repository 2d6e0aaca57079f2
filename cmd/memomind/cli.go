package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v2"

	"github.com/hpungsan/memomind/internal/artifact"
	"github.com/hpungsan/memomind/internal/backend"
	"github.com/hpungsan/memomind/internal/document"
	"github.com/hpungsan/memomind/internal/errors"
	"github.com/hpungsan/memomind/internal/localfile"
	"github.com/hpungsan/memomind/internal/mcp"
	"github.com/hpungsan/memomind/internal/routes"
	"github.com/hpungsan/memomind/internal/session"
	"github.com/hpungsan/memomind/internal/web"
	"github.com/hpungsan/memomind/internal/workflow"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(a *app) *cli.App {
	cliApp := &cli.App{
		Name:    "memomind",
		Usage:   "Study notes, quizzes and flashcards from your PDFs",
		Version: Version,
		Commands: []*cli.Command{
			loginCmd(a),
			signupCmd(a),
			logoutCmd(a),
			profileCmd(a),
			uploadCmd(a),
			generateCmd(a),
			followUpCmd(a),
			saveCmd(a),
			listCmd(a),
			loadCmd(a),
			deleteCmd(a),
			quizCmd(a),
			openCmd(a),
			serveCmd(a),
			mcpCmd(a),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	cliApp.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return cliApp
}

// loginCmd creates the login command.
func loginCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Sign in (password from --password or stdin)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "username", Aliases: []string{"u"}, Required: true, Usage: "Username"},
			&cli.StringFlag{Name: "password", Aliases: []string{"p"}, Usage: "Password (prefer stdin)"},
		},
		Action: func(c *cli.Context) error {
			password, err := passwordInput(c)
			if err != nil {
				return outputError(err)
			}
			creds := backend.Credentials{Username: c.String("username"), Password: password}
			res, err := a.backend.Login(c.Context, creds)
			if err != nil {
				return outputError(err)
			}
			return a.storeIdentity(c.Context, res, creds.Username)
		},
	}
}

// signupCmd creates the signup command.
func signupCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:  "signup",
		Usage: "Create an account and sign in",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "username", Aliases: []string{"u"}, Required: true, Usage: "Username"},
			&cli.StringFlag{Name: "full-name", Aliases: []string{"n"}, Usage: "Full name"},
			&cli.StringFlag{Name: "password", Aliases: []string{"p"}, Usage: "Password (prefer stdin)"},
			&cli.StringFlag{Name: "confirm-password", Usage: "Password confirmation (defaults to the password)"},
		},
		Action: func(c *cli.Context) error {
			password, err := passwordInput(c)
			if err != nil {
				return outputError(err)
			}
			confirm := c.String("confirm-password")
			if confirm == "" {
				confirm = password
			}
			reg := backend.Registration{
				Username:        c.String("username"),
				FullName:        c.String("full-name"),
				Password:        password,
				ConfirmPassword: confirm,
			}
			res, err := a.backend.Signup(c.Context, reg)
			if err != nil {
				return outputError(err)
			}
			if res.Token == "" {
				return outputJSON(map[string]any{"user": res.User, "signed_in": false})
			}
			return a.storeIdentity(c.Context, res, reg.Username)
		},
	}
}

func (a *app) storeIdentity(ctx context.Context, res *backend.AuthResult, username string) error {
	if res.User.Username == "" {
		res.User.Username = username
	}
	id := session.Identity{Token: res.Token, UserID: res.User.Username, FullName: res.User.FullName}
	if err := a.session.Set(ctx, id); err != nil {
		return outputError(err)
	}
	return outputJSON(map[string]any{"user": res.User, "signed_in": true})
}

// logoutCmd creates the logout command.
func logoutCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "Sign out and forget the stored token",
		Action: func(c *cli.Context) error {
			if a.session.Token(c.Context) != "" {
				if err := a.backend.Logout(c.Context); err != nil {
					a.log.Warn("cli", "server logout failed", map[string]any{"error": err.Error()})
				}
			}
			if err := a.session.Clear(c.Context); err != nil {
				return outputError(err)
			}
			return outputJSON(map[string]any{"signed_in": false})
		},
	}
}

// profileCmd creates the profile command.
func profileCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:  "profile",
		Usage: "Show or update the signed-in user's profile",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "set", Usage: "Field to update as key=value (repeatable)"},
		},
		Action: func(c *cli.Context) error {
			if err := a.guard(c.Context, routes.HomePath); err != nil {
				return outputError(err)
			}
			sets := c.StringSlice("set")
			if len(sets) == 0 {
				profile, err := a.backend.Profile(c.Context)
				if err != nil {
					return outputError(err)
				}
				return outputJSON(profile)
			}
			fields, err := parseFields(sets)
			if err != nil {
				return outputError(err)
			}
			profile, err := a.backend.UpdateProfile(c.Context, fields)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(profile)
		},
	}
}

// uploadCmd creates the upload command.
func uploadCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:      "upload",
		Usage:     "Upload a PDF and print the item ID",
		ArgsUsage: "<file.pdf>",
		Action: func(c *cli.Context) error {
			path := c.Args().First()
			if _, err := localfile.Check(path, localfile.Read); err != nil {
				return outputError(err)
			}
			if err := a.guard(c.Context, "/upload"); err != nil {
				return outputError(err)
			}
			id, err := a.session.Require(c.Context)
			if err != nil {
				return outputError(err)
			}

			f, err := localfile.Open(path)
			if err != nil {
				return outputError(err)
			}
			defer f.Close()

			var progress func(sent, total int64)
			if stderrIsTerminal() {
				bar := progressbar.NewOptions64(-1,
					progressbar.OptionSetWriter(os.Stderr),
					progressbar.OptionSetDescription("uploading "+filepath.Base(path)),
					progressbar.OptionShowBytes(true),
					progressbar.OptionClearOnFinish(),
				)
				defer func() { _ = bar.Finish() }()
				progress = func(sent, total int64) {
					if total > 0 && bar.GetMax64() != total {
						bar.ChangeMax64(total)
					}
					_ = bar.Set64(sent)
				}
			}

			item, err := a.backend.Upload(c.Context, id.UserID, filepath.Base(path), f, progress)
			if err != nil {
				return outputError(err)
			}
			paths := make(map[string]string, len(document.Kinds))
			for _, k := range document.Kinds {
				paths[string(k)] = routes.GeneratePath(k, item.ItemName, item.ItemID)
			}
			return outputJSON(map[string]any{"item": item, "routes": paths})
		},
	}
}

func contentFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "Item name (used when saving)"},
		&cli.StringSliceFlag{Name: "follow-up", Aliases: []string{"f"}, Usage: "Follow-up prompt applied after generation (repeatable)"},
		&cli.BoolFlag{Name: "save", Usage: "Save the final content for revision"},
		&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "Write the notes PDF to this file or directory"},
		&cli.BoolFlag{Name: "json", Usage: "Print JSON instead of text"},
	}
}

// generateCmd creates the generate command.
func generateCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:      "generate",
		Usage:     "Generate notes, mcqs or flashcards for an uploaded item",
		ArgsUsage: "<kind> <item-id>",
		Flags:     contentFlags(),
		Action: func(c *cli.Context) error {
			return a.runContent(c, c.StringSlice("follow-up"))
		},
	}
}

// followUpCmd creates the follow-up command.
func followUpCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:      "follow-up",
		Usage:     "Generate content for an item, then revise it with a prompt",
		ArgsUsage: "<kind> <item-id> <prompt>",
		Flags:     contentFlags(),
		Action: func(c *cli.Context) error {
			prompt := strings.TrimSpace(strings.Join(c.Args().Slice()[min(2, c.NArg()):], " "))
			if prompt == "" {
				return outputError(errors.NewInvalidRequest("a follow-up prompt is required"))
			}
			return a.runContent(c, append([]string{prompt}, c.StringSlice("follow-up")...))
		},
	}
}

// contentPage is the part of a workflow the CLI drives.
type contentPage interface {
	State() workflow.State
	Mount(ctx context.Context) (bool, error)
	FollowUp(ctx context.Context, prompt string) error
	Document() document.Document
	Close(ctx context.Context) error
}

// mount runs the page's initial generation through the fetch-once guard.
func (a *app) mount(ctx context.Context, p contentPage) error {
	ran, err := p.Mount(ctx)
	if err != nil {
		return err
	}
	if !ran {
		return errors.NewBusy(workflow.Generating.String())
	}
	return nil
}

func (a *app) newPage(kind document.Kind, itemID, itemName string) contentPage {
	switch kind {
	case document.KindNotes:
		return workflow.NewNotes(a.deps(), itemID, itemName)
	case document.KindMCQs:
		return workflow.NewMCQs(a.deps(), itemID, itemName)
	}
	return workflow.NewFlashcards(a.deps(), itemID, itemName)
}

// runContent generates content, applies prompts in order, then prints,
// writes and saves the result as the flags ask.
func (a *app) runContent(c *cli.Context, prompts []string) error {
	kind, itemID, err := kindAndItem(c)
	if err != nil {
		return outputError(err)
	}
	name := c.String("name")
	if c.Bool("save") && name == "" {
		return outputError(errors.NewInvalidRequest("--name is required with --save"))
	}
	if err := a.guard(c.Context, routes.GeneratePath(kind, name, itemID)); err != nil {
		return outputError(err)
	}

	p := a.newPage(kind, itemID, name)
	defer func() { _ = p.Close(context.WithoutCancel(c.Context)) }()

	if err := a.mount(c.Context, p); err != nil {
		return outputError(err)
	}
	for _, prompt := range prompts {
		if err := p.FollowUp(c.Context, prompt); err != nil {
			return cli.Exit(workflow.FollowUpAlert(err), 1)
		}
	}

	if c.Bool("save") {
		id, err := a.session.Require(c.Context)
		if err != nil {
			return outputError(err)
		}
		if _, err := a.library.Save(c.Context, kind, id.UserID, itemID, name, p.Document()); err != nil {
			return outputError(err)
		}
		fmt.Fprintln(os.Stderr, "Saved.")
	}

	var pdf *artifact.Ref
	if n, ok := p.(*workflow.Notes); ok {
		pdf = n.View().PDF
	}
	if out := c.String("out"); out != "" {
		stem := name
		if stem == "" {
			stem = itemID
		}
		if err := writePDF(pdf, out, stem); err != nil {
			return outputError(err)
		}
	}
	if c.Bool("json") {
		return outputJSON(map[string]any{"state": p.State(), "document": p.Document().Payload(), "pdf": pdf})
	}
	return printDocument(os.Stdout, p.Document(), pdf)
}

// saveCmd creates the save command.
func saveCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:      "save",
		Usage:     "Save a document for revision (reads the document JSON from stdin)",
		ArgsUsage: "<kind> <item-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Required: true, Usage: "Item name"},
		},
		Action: func(c *cli.Context) error {
			kind, itemID, err := kindAndItem(c)
			if err != nil {
				return outputError(err)
			}
			if !stdinHasData() {
				return outputError(errors.NewInvalidRequest("document JSON must be piped via stdin"))
			}
			body, err := readStdin()
			if err != nil {
				return outputError(errors.NewInternal(err))
			}
			doc, err := document.Parse(kind, []byte(body))
			if err != nil {
				return outputError(err)
			}
			if err := a.guard(c.Context, "/"+string(kind)); err != nil {
				return outputError(err)
			}
			id, err := a.session.Require(c.Context)
			if err != nil {
				return outputError(err)
			}
			ack, err := a.library.Save(c.Context, kind, id.UserID, itemID, c.String("name"), doc)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(map[string]any{"saved": true, "kind": kind, "item_id": itemID, "response": ack})
		},
	}
}

// listCmd creates the list command.
func listCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:      "list",
		Usage:     "List saved content of one kind",
		ArgsUsage: "<kind>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Usage: "Max items (default: all)"},
			&cli.BoolFlag{Name: "json", Usage: "Print JSON instead of a table"},
		},
		Action: func(c *cli.Context) error {
			kind, err := document.ParseKind(c.Args().First())
			if err != nil {
				return outputError(err)
			}
			if err := a.guard(c.Context, "/"+string(kind)); err != nil {
				return outputError(err)
			}
			id, err := a.session.Require(c.Context)
			if err != nil {
				return outputError(err)
			}
			items, err := a.library.List(c.Context, kind, id.UserID)
			if err != nil {
				return outputError(err)
			}
			if limit := c.Int("limit"); limit > 0 && limit < len(items) {
				items = items[:limit]
			}
			if c.Bool("json") {
				return outputJSON(map[string]any{"kind": kind, "items": items})
			}
			fmt.Fprintln(os.Stdout, summaryTable(kind, items))
			return nil
		},
	}
}

// loadCmd creates the load command.
func loadCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:      "load",
		Usage:     "Load saved content",
		ArgsUsage: "<kind> <item-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "Write a notes PDF to this file or directory"},
			&cli.BoolFlag{Name: "json", Usage: "Print JSON instead of text"},
		},
		Action: func(c *cli.Context) error {
			kind, itemID, err := kindAndItem(c)
			if err != nil {
				return outputError(err)
			}
			if err := a.guard(c.Context, routes.LoadPath(kind, itemID)); err != nil {
				return outputError(err)
			}
			id, err := a.session.Require(c.Context)
			if err != nil {
				return outputError(err)
			}
			loaded, err := a.library.Load(c.Context, kind, id.UserID, itemID)
			if err != nil {
				return outputError(err)
			}
			defer func() { _ = a.artifacts.Release(context.WithoutCancel(c.Context), loaded.PDF) }()

			if out := c.String("out"); out != "" {
				if err := writePDF(loaded.PDF, out, itemID); err != nil {
					return outputError(err)
				}
			}
			if c.Bool("json") {
				return outputJSON(map[string]any{"kind": kind, "item_id": itemID, "document": loaded.Document.Payload(), "pdf": loaded.PDF})
			}
			return printDocument(os.Stdout, loaded.Document, loaded.PDF)
		},
	}
}

// deleteCmd creates the delete command.
func deleteCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete saved content",
		ArgsUsage: "<kind> <item-id>",
		Action: func(c *cli.Context) error {
			kind, itemID, err := kindAndItem(c)
			if err != nil {
				return outputError(err)
			}
			if err := a.guard(c.Context, "/"+string(kind)); err != nil {
				return outputError(err)
			}
			id, err := a.session.Require(c.Context)
			if err != nil {
				return outputError(err)
			}
			if err := a.library.Delete(c.Context, kind, id.UserID, itemID); err != nil {
				return outputError(err)
			}
			return outputJSON(map[string]any{"deleted": true, "kind": kind, "item_id": itemID})
		},
	}
}

// quizCmd creates the quiz command.
func quizCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:      "quiz",
		Usage:     "Practise mcqs or flashcards interactively",
		ArgsUsage: "<mcqs|flashcards> <item-id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "saved", Usage: "Use the saved copy instead of generating"},
		},
		Action: func(c *cli.Context) error {
			kind, itemID, err := kindAndItem(c)
			if err != nil {
				return outputError(err)
			}
			if kind == document.KindNotes {
				return outputError(errors.NewInvalidRequest("quiz works with mcqs or flashcards"))
			}

			var doc document.Document
			if c.Bool("saved") {
				if err := a.guard(c.Context, routes.LoadPath(kind, itemID)); err != nil {
					return outputError(err)
				}
				id, err := a.session.Require(c.Context)
				if err != nil {
					return outputError(err)
				}
				loaded, err := a.library.Load(c.Context, kind, id.UserID, itemID)
				if err != nil {
					return outputError(err)
				}
				doc = loaded.Document
			} else {
				if err := a.guard(c.Context, routes.GeneratePath(kind, "", itemID)); err != nil {
					return outputError(err)
				}
				p := a.newPage(kind, itemID, "")
				defer func() { _ = p.Close(context.WithoutCancel(c.Context)) }()
				if err := a.mount(c.Context, p); err != nil {
					return outputError(err)
				}
				doc = p.Document()
			}

			if kind == document.KindMCQs {
				runMCQQuiz(c.App.Reader, c.App.Writer, doc.MCQ)
				return nil
			}
			runFlashcards(c.App.Reader, c.App.Writer, doc.Flashcards)
			return nil
		},
	}
}

// openCmd creates the open command.
func openCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:      "open",
		Usage:     "Resolve a client path and show the command that renders it",
		ArgsUsage: "<path>",
		Action: func(c *cli.Context) error {
			r := routes.Resolve(c.Args().First())
			out := map[string]any{"page": r.Page, "path": r.Path}
			if r.Kind != "" {
				out["kind"] = r.Kind
			}
			if r.ItemID != "" {
				out["item_id"] = r.ItemID
			}
			if redirect := routes.Guard(r, a.session.Token(c.Context) != ""); redirect != "" {
				out["redirect"] = redirect
				r = routes.Resolve(redirect)
			}
			out["command"] = commandFor(r)
			return outputJSON(out)
		},
	}
}

// serveCmd creates the serve command.
func serveCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the local viewer for PDFs and saved content",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Usage: "Bind address (default from config)"},
			&cli.IntFlag{Name: "port", Usage: "Port (default from config)"},
		},
		Action: func(c *cli.Context) error {
			bind, port := a.cfg.ViewerBind, a.cfg.ViewerPort
			if c.IsSet("bind") {
				bind = c.String("bind")
			}
			if c.IsSet("port") {
				port = c.Int("port")
			}
			h := a.webHandlers()
			srv, err := web.NewServer(h, Version, bind, port)
			if err != nil {
				return outputError(err)
			}
			fmt.Fprintf(os.Stderr, "Viewer running at http://%s\n", srv.Addr)
			return web.Run(srv, a.log, func(ctx context.Context) {
				h.Close(ctx)
				a.sweep(ctx)
			})
		},
	}
}

// mcpCmd creates the mcp command.
func mcpCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve the MemoMind tools over MCP stdio",
		Action: func(c *cli.Context) error {
			return mcp.Run(a.mcpHandlers(), a.cfg, Version)
		},
	}
}

// Helper functions

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if apiErr, ok := errors.As(err); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", apiErr.Code, apiErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// kindAndItem reads the <kind> <item-id> positional arguments.
func kindAndItem(c *cli.Context) (document.Kind, string, error) {
	kind, err := document.ParseKind(c.Args().Get(0))
	if err != nil {
		return "", "", err
	}
	itemID := strings.TrimSpace(c.Args().Get(1))
	if itemID == "" {
		return "", "", errors.NewInvalidRequest("item-id is required")
	}
	return kind, itemID, nil
}

// passwordInput returns --password, else the first line piped on stdin.
func passwordInput(c *cli.Context) (string, error) {
	if p := c.String("password"); p != "" {
		return p, nil
	}
	if !stdinHasData() {
		return "", errors.NewInvalidRequest("password must be given with --password or piped via stdin")
	}
	p, err := readStdin()
	if err != nil {
		return "", errors.NewInternal(err)
	}
	p, _, _ = strings.Cut(p, "\n")
	return p, nil
}

// parseFields turns key=value pairs into a profile update.
func parseFields(pairs []string) (map[string]any, error) {
	fields := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid field %q, want key=value", pair))
		}
		fields[k] = v
	}
	return fields, nil
}

// commandFor suggests the CLI command rendering route r.
func commandFor(r routes.Route) string {
	switch r.Page {
	case routes.PageLogin:
		return "memomind login -u <username>"
	case routes.PageSignup:
		return "memomind signup -u <username>"
	case routes.PageUpload:
		return "memomind upload <file.pdf>"
	case routes.PageGenerate:
		return fmt.Sprintf("memomind generate --name %q %s %s", r.ItemName, r.Kind, r.ItemID)
	case routes.PageLoad:
		return fmt.Sprintf("memomind load %s %s", r.Kind, r.ItemID)
	case routes.PageSaved:
		return "memomind list " + string(r.Kind)
	}
	return "memomind list notes"
}

// writePDF writes the PDF behind ref to path. A directory path gets a file
// named after stem.
func writePDF(ref *artifact.Ref, path, stem string) error {
	if ref == nil {
		return errors.NewInvalidRequest("no PDF is available for this content")
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, localfile.SafeName(stem)+localfile.PDFExt)
	}
	var data []byte
	var err error
	switch {
	case ref.Path != "":
		data, err = os.ReadFile(ref.Path)
	case strings.HasPrefix(ref.URL, "data:"):
		data, err = artifact.DecodeDataURI(ref.URL)
	default:
		return errors.NewInvalidRequest("PDF is hosted remotely: " + ref.URL)
	}
	if err != nil {
		return err
	}
	if err := localfile.WriteFile(path, data); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Wrote %s (%d bytes)\n", path, len(data))
	return nil
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads all content from stdin.
func readStdin() (string, error) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
