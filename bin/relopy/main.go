package main

import (
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/c2h5oh/datasize"
	"github.com/elwinar/relopy/pkg/bundle"
	"github.com/elwinar/relopy/pkg/conf"
	"github.com/elwinar/relopy/pkg/patchelf"
	"github.com/elwinar/relopy/pkg/rpmx"
	"github.com/inconshreveable/log15"
	"golang.org/x/sys/unix"
)

var Version = "N/C"

// basePackage is the package the bundle is built around. Module packages
// given on the command line are resolved on top of it.
const basePackage = "python3"

// main is tasked to bootstrap the pipeline and translate failures into exit
// codes.
func main() {
	var s service
	s.configure()

	err := s.init()
	if err != nil {
		s.logger.Crit("initializing", "err", err)
		os.Exit(1)
	}

	err = s.run()
	if err != nil {
		s.logger.Crit("bundling", "err", err)
		os.Exit(1)
	}
}

type service struct {
	output       string
	check        bool
	printVersion bool
	modules      []string

	arch    string
	logger  log15.Logger
	db      *rpmx.DB
	patcher patchelf.Tool
}

// configure read and validate the configuration of the service and populate
// the appropriate fields.
func (s *service) configure() {
	fs := flag.NewFlagSet("relopy-"+Version, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "Usage of relopy: relopy [options] [module ...]")
		fs.PrintDefaults()
	}
	fs.StringVar(&s.output, "output", "", "destination file (gzipped tar)")
	fs.BoolVar(&s.check, "check", false, "report bundled binaries whose needed libraries are missing from the bundle")
	fs.BoolVar(&s.printVersion, "version", false, "print the version of relopy")
	fs.String("conf", "/etc/relopy.conf", "configuration file to load")
	conf.Parse(fs, "conf")

	s.modules = fs.Args()

	// Logger
	s.logger = log15.New()
	s.logger.SetHandler(log15.StreamHandler(os.Stdout, log15.LogfmtFormat()))
}

// init does the actual bootstraping of the command, once the configuration is
// read: validating flags, reading the machine architecture, and making sure
// the external tools we depend on are reachable.
func (s *service) init() error {
	if s.printVersion {
		fmt.Println("relopy", Version)
		os.Exit(0)
	}

	if s.output == "" {
		return fmt.Errorf("missing the -output flag")
	}

	// The architecture is read once here and threaded explicitly through
	// the resolver, so nothing re-reads the environment mid-run.
	var uts unix.Utsname
	err := unix.Uname(&uts)
	if err != nil {
		return wrap(err, `reading machine architecture`)
	}
	s.arch = unix.ByteSliceToString(uts.Machine[:])
	s.db = rpmx.New(s.arch)

	// Better to find out now than after resolving the whole closure.
	path, err := exec.LookPath("patchelf")
	if err != nil {
		return wrap(err, `looking up patchelf`)
	}
	s.patcher = patchelf.Tool{Path: path}

	return nil
}

// run drives the pipeline: resolve the package closure, select the files,
// and assemble the archive. Any error aborts the run with no archive left at
// the destination path.
func (s *service) run() (err error) {
	packages := append([]string{basePackage}, s.modules...)

	s.logger.Info("resolving dependencies", "packages", packages, "arch", s.arch)
	closure, err := s.db.Resolve(packages)
	if err != nil {
		return wrap(err, `resolving dependencies`)
	}
	s.logger.Debug("resolved closure", "count", len(closure))

	files, err := bundle.Select(s.db, packages, closure)
	if err != nil {
		return wrap(err, `selecting files`)
	}
	s.logger.Info("selected files", "count", len(files))

	// Assemble into a temporary file next to the destination and only
	// rename once every file made it in, so a failed run never leaves a
	// half-written archive behind.
	out, err := os.CreateTemp(filepath.Dir(s.output), "."+filepath.Base(s.output)+".*")
	if err != nil {
		return wrap(err, `creating archive`)
	}
	defer func() {
		if err != nil {
			out.Close()
			os.Remove(out.Name())
		}
	}()

	var opts []bundle.Option
	if s.check {
		opts = append(opts, bundle.WithImportCheck())
	}
	builder := bundle.NewBuilder(out, s.patcher, s.logger, opts...)

	for _, file := range files {
		err = builder.Add(file)
		if err != nil {
			return wrap(err, `bundling %s`, file)
		}
	}

	err = builder.Close()
	if err != nil {
		return wrap(err, `closing archive`)
	}

	err = out.Close()
	if err != nil {
		return wrap(err, `closing archive file`)
	}

	err = os.Rename(out.Name(), s.output)
	if err != nil {
		return wrap(err, `moving archive into place`)
	}

	s.logger.Info("done", "output", s.output, "size", datasize.ByteSize(builder.Size()).HumanReadable())
	return nil
}

// wrap an error using the provided message and arguments.
func wrap(err error, msg string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(msg, args...), err)
}
