// Command bandfit fits the four-band k·p Hamiltonian to DFT band energies
// near the Fermi level.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/banshee-data/bandfit/internal/bands"
	"github.com/banshee-data/bandfit/internal/config"
	"github.com/banshee-data/bandfit/internal/db"
	"github.com/banshee-data/bandfit/internal/fermi"
	"github.com/banshee-data/bandfit/internal/fit"
	"github.com/banshee-data/bandfit/internal/fsutil"
	"github.com/banshee-data/bandfit/internal/monitoring"
	"github.com/banshee-data/bandfit/internal/params"
	"github.com/banshee-data/bandfit/internal/version"
)

const (
	exitOK           = 0
	exitError        = 1
	exitNotConverged = 2
)

type options struct {
	estimate    string
	bandsPath   string
	outcar      string
	configPath  string
	dbPath      string
	outPath     string
	trace       bool
	showVersion bool

	list     int
	showID   string
	deleteID string
}

func (o *options) history() bool {
	return o.list != 0 || o.showID != "" || o.deleteID != ""
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("bandfit", flag.ContinueOnError)
	fs.SetOutput(stderr)

	o := &options{}
	fs.StringVar(&o.estimate, "estimate", "4band.json", "JSON file with the initial parameter estimate")
	fs.StringVar(&o.bandsPath, "bands", "bands.json", "JSON band dataset (k-points and energies)")
	fs.StringVar(&o.outcar, "outcar", "OUTCAR", "DFT output file containing the E-fermi line")
	fs.StringVar(&o.configPath, "config", "", "optional fit configuration JSON")
	fs.StringVar(&o.dbPath, "db", "", "optional SQLite database to record the fit result")
	fs.StringVar(&o.outPath, "out", "", "optional JSON file to write the fitted parameters")
	fs.BoolVar(&o.trace, "trace", false, "log every trial parameter vector")
	fs.BoolVar(&o.showVersion, "version", false, "print version and exit")
	fs.IntVar(&o.list, "list", 0, "print the N most recent fits recorded in -db and exit (all if N < 0)")
	fs.StringVar(&o.showID, "show", "", "print the fit with this ID from -db and exit")
	fs.StringVar(&o.deleteID, "delete", "", "delete the fit with this ID from -db and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return o, nil
}

func main() {
	os.Exit(run(fsutil.OSFileSystem{}, os.Args[1:], os.Stdout, os.Stderr))
}

func run(fsys fsutil.FileSystem, args []string, stdout, stderr io.Writer) int {
	o, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitError
	}
	if o.showVersion {
		fmt.Fprintln(stdout, version.String())
		return exitOK
	}
	if o.history() {
		if err := history(o, stdout); err != nil {
			log.Printf("bandfit: %v", err)
			return exitError
		}
		return exitOK
	}

	in, cfg, err := loadInput(fsys, o)
	if err != nil {
		log.Printf("bandfit: %v", err)
		return exitError
	}

	rep, err := fit.Run(*in)
	var nce *fit.NonconvergenceError
	if err != nil && !errors.As(err, &nce) {
		log.Printf("bandfit: %v", err)
		return exitError
	}

	printReport(stdout, rep, in.Fermi)
	if o.outPath != "" {
		if err := writeParams(fsys, o.outPath, rep.Params); err != nil {
			log.Printf("bandfit: %v", err)
			return exitError
		}
	}
	if o.dbPath != "" {
		if err := record(o.dbPath, rep, in.Fermi, o.bandsPath); err != nil {
			log.Printf("bandfit: %v", err)
			return exitError
		}
	}

	if nce != nil {
		fmt.Fprintf(stdout, "WARNING: %v\n", nce)
		fmt.Fprintf(stdout, "best parameters found (max evaluations %d): %v\n", cfg.GetMaxEvaluations(), rep.Params)
		return exitNotConverged
	}
	return exitOK
}

// loadInput reads every input file and assembles the fit input. Nothing is
// optimised until all inputs are present and valid.
func loadInput(fsys fsutil.FileSystem, o *options) (*fit.Input, *config.FitConfig, error) {
	cfg := &config.FitConfig{}
	if o.configPath != "" {
		var err error
		if cfg, err = config.LoadFitConfigFS(fsys, o.configPath); err != nil {
			return nil, nil, err
		}
	}

	initial, err := params.LoadEstimate(fsys, o.estimate)
	if err != nil {
		return nil, nil, err
	}
	ef, err := fermi.FindFile(fsys, o.outcar)
	if err != nil {
		return nil, nil, err
	}
	ds, err := bands.LoadDataset(fsys, o.bandsPath)
	if err != nil {
		return nil, nil, err
	}
	monitoring.Logf("loaded %d k-points, E_F = %g eV", len(ds.KPoints), ef)

	in := &fit.Input{
		Dataset:            ds,
		Fermi:              ef,
		Initial:            initial,
		Settings:           cfg.Settings(),
		Cutoff:             cfg.GetKCutoff(),
		HermitianTolerance: cfg.GetHermitianTolerance(),
	}
	if o.trace || cfg.GetTraceProgress() {
		in.Observer = fit.LogObserver(monitoring.Logf)
	}
	return in, cfg, nil
}

func printReport(w io.Writer, rep *fit.Report, ef float64) {
	fmt.Fprintf(w, "E_F = %g eV, bands %v, %d k-points in objective\n", ef, rep.Window, rep.Retained)
	fmt.Fprintf(w, "status: %v after %d evaluations, residual norm %.6g\n",
		rep.Result.Status, rep.Result.Evaluations, rep.Result.ResidualNorm)
	for i, name := range params.Names {
		fmt.Fprintf(w, "  %-2s = %14.8g   (initial %.8g)\n", name, rep.Params[i], rep.Initial[i])
	}
}

func writeParams(fsys fsutil.FileSystem, path string, p params.Vector) error {
	data, err := json.MarshalIndent(p.Map(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode parameters: %w", err)
	}
	if err := fsys.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func record(path string, rep *fit.Report, ef float64, source string) error {
	database, err := db.NewDB(path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	rec, err := db.NewFitRecord(rep, ef, source)
	if err != nil {
		return err
	}
	if err := db.NewFitStore(database).Insert(rec); err != nil {
		return err
	}
	monitoring.Logf("recorded fit %s in %s", rec.FitID, path)
	return nil
}

// history serves the -list, -show and -delete queries against -db.
func history(o *options, stdout io.Writer) error {
	if o.dbPath == "" {
		return fmt.Errorf("-list, -show and -delete need -db")
	}
	database, err := db.NewDB(o.dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()
	store := db.NewFitStore(database)

	switch {
	case o.deleteID != "":
		if err := store.Delete(o.deleteID); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "deleted fit %s\n", o.deleteID)
	case o.showID != "":
		rec, err := store.Get(o.showID)
		if err != nil {
			return err
		}
		printRecord(stdout, rec)
		p, err := rec.Params()
		if err != nil {
			return err
		}
		for _, name := range params.Names {
			fmt.Fprintf(stdout, "  %-2s = %14.8g\n", name, p[name])
		}
	default:
		schema, _, err := database.MigrateVersion()
		if err != nil {
			return err
		}
		recs, err := store.List(o.list)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "%d fits in %s (schema version %d)\n", len(recs), o.dbPath, schema)
		for _, rec := range recs {
			printRecord(stdout, rec)
		}
	}
	return nil
}

func printRecord(w io.Writer, rec *db.FitRecord) {
	created := time.Unix(0, rec.CreatedAt).UTC().Format(time.RFC3339)
	fmt.Fprintf(w, "%s  %s  %s  residual %.6g  E_F %g  bands %v  %s\n",
		rec.FitID, created, rec.StatusText, rec.ResidualNorm, rec.Fermi, rec.Window, rec.Source)
}
