// Command enriched converts between rich-text markup and the annotated
// document model, stores documents and serves conversions over HTTP.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/FocuswithJustin/enriched/core/builder"
	"github.com/FocuswithJustin/enriched/core/cache"
	"github.com/FocuswithJustin/enriched/core/document"
	"github.com/FocuswithJustin/enriched/core/errors"
	"github.com/FocuswithJustin/enriched/core/sqlite"
	"github.com/FocuswithJustin/enriched/core/store"
	"github.com/FocuswithJustin/enriched/core/theme"
	"github.com/FocuswithJustin/enriched/core/transcode"
	"github.com/FocuswithJustin/enriched/core/xml"
	"github.com/FocuswithJustin/enriched/internal/api"
	"github.com/FocuswithJustin/enriched/internal/logging"
)

const version = "0.1.0"

// Globals are the flags shared by every command.
type Globals struct {
	LogLevel  string `name:"log-level" help:"Log level (debug, info, warn, error)" default:"warn" enum:"debug,info,warn,error"`
	LogFormat string `name:"log-format" help:"Log format (text, json)" default:"text" enum:"text,json"`
	Theme     string `help:"Theme JSON file" type:"existingfile"`
	DB        string `name:"db" help:"Document store path" default:"enriched.db" type:"path"`
	Cache     int    `help:"Conversion cache entries (0 disables)" default:"256"`
}

// CLI defines the command-line interface.
type CLI struct {
	Globals

	ToModel   ToModelCmd   `cmd:"" name:"to-model" help:"Convert markup to model JSON"`
	ToMarkup  ToMarkupCmd  `cmd:"" name:"to-markup" help:"Convert model JSON to markup"`
	RoundTrip RoundTripCmd `cmd:"" name:"roundtrip" help:"Normalize markup by converting it both ways"`
	Query     QueryCmd     `cmd:"" help:"Run an XPath query against normalized markup"`
	Format    FormatCmd    `cmd:"" help:"Pretty-print normalized markup"`
	Store     StoreGroup   `cmd:"" help:"Stored document operations"`
	Serve     ServeCmd     `cmd:"" help:"Start the conversion server"`
	Version   VersionCmd   `cmd:"" help:"Print version information"`
}

// StoreGroup contains stored document operations.
type StoreGroup struct {
	Put    StorePutCmd    `cmd:"" help:"Convert markup and store it under a name"`
	Get    StoreGetCmd    `cmd:"" help:"Print a stored document"`
	List   StoreListCmd   `cmd:"" help:"List stored documents"`
	Delete StoreDeleteCmd `cmd:"" help:"Delete a stored document"`
}

// Env carries what commands need besides their own flags.
type Env struct {
	Stdin  io.Reader
	Stdout io.Writer
	Theme  *theme.Theme
	DBPath string
	Cache  int

	tr *transcode.Transcoder
}

// newEnv applies the global flags: logging, theme and conversion cache.
func newEnv(g *Globals, stdin io.Reader, stdout io.Writer) (*Env, error) {
	level, err := logging.ParseLevel(g.LogLevel)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(g.LogFormat)
	if err != nil {
		return nil, err
	}
	logging.InitLogger(level, format)

	th := theme.Default()
	if g.Theme != "" {
		if th, err = theme.Load(g.Theme); err != nil {
			return nil, err
		}
	}

	opts := []transcode.Option{transcode.WithTheme(th)}
	if g.Cache > 0 {
		opts = append(opts, transcode.WithCache(cache.NewConversions(cache.Config{MaxSize: g.Cache})))
	}
	return &Env{
		Stdin:  stdin,
		Stdout: stdout,
		Theme:  th,
		DBPath: g.DB,
		Cache:  g.Cache,
		tr:     transcode.New(opts...),
	}, nil
}

// read returns the contents of path, or of stdin when path is "" or "-".
func (e *Env) read(path string) (string, error) {
	if path == "" || path == "-" {
		data, err := io.ReadAll(e.Stdin)
		if err != nil {
			return "", errors.NewIO("read", "stdin", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.NewIO("read", path, err)
	}
	return string(data), nil
}

func (e *Env) openStore() (*store.Store, error) {
	return store.Open(e.DBPath, e.tr)
}

func (e *Env) writeModel(doc *document.Document, pretty bool) error {
	data, err := doc.MarshalJSON()
	if err != nil {
		return errors.Wrap(err, "encode model")
	}
	if pretty {
		var buf bytes.Buffer
		if err := json.Indent(&buf, data, "", "  "); err != nil {
			return errors.Wrap(err, "indent model")
		}
		data = buf.Bytes()
	}
	_, err = fmt.Fprintf(e.Stdout, "%s\n", data)
	return err
}

// ToModelCmd converts markup to model JSON.
type ToModelCmd struct {
	Input  string `arg:"" optional:"" help:"Markup file (default stdin)"`
	Pretty bool   `help:"Indent the JSON output"`
}

func (c *ToModelCmd) Run(ctx context.Context, env *Env) error {
	markup, err := env.read(c.Input)
	if err != nil {
		return err
	}
	doc, err := env.tr.FromMarkup(ctx, markup, builder.Options{})
	if err != nil {
		return err
	}
	return env.writeModel(doc, c.Pretty)
}

// ToMarkupCmd converts model JSON to markup.
type ToMarkupCmd struct {
	Input string `arg:"" optional:"" help:"Model JSON file (default stdin)"`
}

func (c *ToMarkupCmd) Run(ctx context.Context, env *Env) error {
	data, err := env.read(c.Input)
	if err != nil {
		return err
	}
	doc, err := document.Decode([]byte(data))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(env.Stdout, env.tr.ToMarkup(ctx, doc))
	return err
}

// RoundTripCmd normalizes markup.
type RoundTripCmd struct {
	Input string `arg:"" optional:"" help:"Markup file (default stdin)"`
	Check bool   `help:"Fail when the input is not already normalized"`
}

func (c *RoundTripCmd) Run(ctx context.Context, env *Env) error {
	markup, err := env.read(c.Input)
	if err != nil {
		return err
	}
	out, _, err := env.tr.RoundTrip(ctx, markup)
	if err != nil {
		return err
	}
	if c.Check {
		if out != markup {
			return errors.NewValidation("input", "markup is not normalized")
		}
		return nil
	}
	_, err = fmt.Fprintln(env.Stdout, out)
	return err
}

// QueryCmd runs an XPath query against normalized markup.
type QueryCmd struct {
	XPath string `arg:"" help:"XPath expression, e.g. //li or //mention[@indicator='@']"`
	Input string `arg:"" optional:"" help:"Markup file (default stdin)"`
	XML   bool   `name:"xml" help:"Print matching nodes as XML instead of text"`
	Count bool   `help:"Print only the number of matches"`
}

func (c *QueryCmd) Run(ctx context.Context, env *Env) error {
	markup, err := env.read(c.Input)
	if err != nil {
		return err
	}
	normalized, _, err := env.tr.RoundTrip(ctx, markup)
	if err != nil {
		return err
	}
	nodes, err := xml.Query(normalized, c.XPath)
	if err != nil {
		return err
	}

	if c.Count {
		_, err = fmt.Fprintln(env.Stdout, len(nodes))
		return err
	}
	for _, n := range nodes {
		out := n.Text()
		if c.XML {
			out = n.OuterXML()
		}
		if _, err := fmt.Fprintln(env.Stdout, out); err != nil {
			return err
		}
	}
	return nil
}

// FormatCmd pretty-prints normalized markup.
type FormatCmd struct {
	Input  string `arg:"" optional:"" help:"Markup file (default stdin)"`
	Indent string `help:"Indentation unit" default:"  "`
}

func (c *FormatCmd) Run(ctx context.Context, env *Env) error {
	markup, err := env.read(c.Input)
	if err != nil {
		return err
	}
	normalized, _, err := env.tr.RoundTrip(ctx, markup)
	if err != nil {
		return err
	}
	out, err := xml.Format(normalized, xml.FormatOptions{Indent: c.Indent})
	if err != nil {
		return err
	}
	_, err = io.WriteString(env.Stdout, out)
	return err
}

// StorePutCmd converts markup and stores it.
type StorePutCmd struct {
	Name  string `arg:"" help:"Document name"`
	Input string `arg:"" optional:"" help:"Markup file (default stdin)"`
}

func (c *StorePutCmd) Run(ctx context.Context, env *Env) error {
	markup, err := env.read(c.Input)
	if err != nil {
		return err
	}
	st, err := env.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	rec, err := st.Put(ctx, c.Name, markup)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(env.Stdout, "%s %s\n", rec.Name, rec.Hash)
	return err
}

// StoreGetCmd prints a stored document.
type StoreGetCmd struct {
	Name   string `arg:"" help:"Document name"`
	Model  bool   `help:"Print the model JSON instead of the markup"`
	Pretty bool   `help:"Indent the JSON output"`
}

func (c *StoreGetCmd) Run(ctx context.Context, env *Env) error {
	st, err := env.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	rec, err := st.Get(ctx, c.Name)
	if err != nil {
		return err
	}
	if c.Model {
		return env.writeModel(rec.Document, c.Pretty)
	}
	_, err = fmt.Fprintln(env.Stdout, rec.Markup)
	return err
}

// StoreListCmd lists stored documents.
type StoreListCmd struct {
	JSON bool `name:"json" help:"Print entries as JSON"`
}

func (c *StoreListCmd) Run(ctx context.Context, env *Env) error {
	st, err := env.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	entries, err := st.List(ctx)
	if err != nil {
		return err
	}
	if c.JSON {
		if entries == nil {
			entries = []store.Entry{}
		}
		enc := json.NewEncoder(env.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}
	for _, e := range entries {
		if _, err := fmt.Fprintf(env.Stdout, "%-24s %8d  %s  %s\n",
			e.Name, e.Size, e.Hash[:12], e.UpdatedAt.Format("2006-01-02 15:04:05")); err != nil {
			return err
		}
	}
	return nil
}

// StoreDeleteCmd deletes a stored document.
type StoreDeleteCmd struct {
	Name string `arg:"" help:"Document name"`
}

func (c *StoreDeleteCmd) Run(ctx context.Context, env *Env) error {
	st, err := env.openStore()
	if err != nil {
		return err
	}
	defer st.Close()
	return st.Delete(ctx, c.Name)
}

// ServeCmd starts the conversion server.
type ServeCmd struct {
	Port    int      `help:"HTTP server port" default:"8080"`
	Origins []string `name:"origin" help:"Allowed CORS and WebSocket origin (repeatable, default all)"`
	MaxBody int64    `name:"max-body" help:"Request body and WebSocket frame limit in bytes" default:"1048576"`
	Rate    int      `help:"WebSocket frames per second per client (0 = unlimited)" default:"20"`
	NoStore bool     `name:"no-store" help:"Serve without the document endpoints"`
}

func (c *ServeCmd) Run(ctx context.Context, env *Env) error {
	cfg := api.Config{
		Port:           c.Port,
		AllowedOrigins: c.Origins,
		MaxBodyBytes:   c.MaxBody,
		CacheSize:      env.Cache,
		MaxMessageRate: c.Rate,
		Theme:          env.Theme,
		Version:        version,
	}
	if !c.NoStore {
		st, err := env.openStore()
		if err != nil {
			return err
		}
		defer st.Close()
		cfg.Store = st
	}
	return api.New(cfg).ListenAndServe(ctx)
}

// VersionCmd prints version information.
type VersionCmd struct{}

func (c *VersionCmd) Run(env *Env) error {
	_, err := fmt.Fprintf(env.Stdout, "enriched version %s (sqlite %s)\n", version, sqlite.DriverType())
	return err
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("enriched"),
		kong.Description("Rich-text markup transcoder"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)

	env, err := newEnv(&cli.Globals, os.Stdin, os.Stdout)
	kctx.FatalIfErrorf(err)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	kctx.BindTo(ctx, (*context.Context)(nil))
	err = kctx.Run(env)
	stop()
	kctx.FatalIfErrorf(err)
}
