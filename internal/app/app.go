package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"os/user"
	"path"
	"strings"
	"time"

	"vfs-go/internal/config"
	"vfs-go/internal/database"
	"vfs-go/internal/encryption"
	"vfs-go/internal/events"
	"vfs-go/internal/export"
	"vfs-go/internal/lock"
	"vfs-go/internal/metrics"
	"vfs-go/internal/vfs"
)

// VFSApp is the application layer between the CLI and the vfs package.
// It constructs all dependencies from config, exposes operations that
// accept raw names and paths, and tears everything down on Close.
type VFSApp struct {
	cfg       *config.Config
	db        *database.SQLDatabase
	bus       *events.Bus
	mirror    vfs.ExportMirror
	metrics   *metrics.Collector
	encryptor encryption.Encryptor
	service   *vfs.Service
	publisher *vfs.Publisher
	user      vfs.User
	logger    vfs.Logger
	op        *Operation
	logFile   io.Closer

	stopListener context.CancelFunc
	listenerDone chan struct{}
}

// NewVFSApp creates a fully wired VFSApp from the given config.
// operation names the CLI command being run (e.g. "Publish", "List").
// The caller must call Close when done.
func NewVFSApp(ctx context.Context, cfg *config.Config, operation string) (*VFSApp, error) {
	clock := vfs.RealClock{}
	op := NewOperation(operation, clock.Now())

	slogger, logFile, err := newLogger(logOptions{
		Dir:        cfg.LogDir,
		Level:      cfg.Log.Level,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	}, op.ID)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	bus := events.NewBus(logger, clock)

	db, err := database.NewDatabaseFromConfig(cfg.Database, database.WithEventBus(bus), database.WithLogger(logger))
	if err != nil {
		bus.Close()
		logFile.Close()
		return nil, fmt.Errorf("creating database: %w", err)
	}
	if err := db.CheckMigrations(); err != nil {
		db.Close()
		bus.Close()
		logFile.Close()
		return nil, fmt.Errorf("database schema out of date (run 'vfs database migrate'): %w", err)
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		db.Close()
		bus.Close()
		logFile.Close()
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	mirror, err := export.NewMirrorFromConfig(ctx, cfg.Export, enc, logger)
	if err != nil {
		db.Close()
		bus.Close()
		logFile.Close()
		return nil, fmt.Errorf("creating export mirror: %w", err)
	}

	// Nothing in the CLI takes locks; the table only answers the publisher.
	locks := lock.NewTable()
	collector := metrics.NewCollector()
	users := cfg.UserDirectory()

	a := &VFSApp{
		cfg:       cfg,
		db:        db,
		bus:       bus,
		mirror:    mirror,
		metrics:   collector,
		encryptor: enc,
		service:   vfs.NewService(db, logger, clock),
		publisher: vfs.NewPublisher(db, db, locks, bus, mirror, users, collector, logger, clock),
		user:      currentUser(users),
		logger:    logger,
		op:        op,
		logFile:   logFile,
	}
	if err := a.listen(); err != nil {
		a.Close()
		return nil, err
	}
	logger.Debug("operation started", "operation", op.Name)
	return a, nil
}

// listen logs every cache event at debug level. It stands in for the
// cache listeners of a long running server.
func (a *VFSApp) listen() error {
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := a.bus.Subscribe(ctx)
	if err != nil {
		cancel()
		return fmt.Errorf("subscribing to events: %w", err)
	}
	a.stopListener = cancel
	a.listenerDone = make(chan struct{})
	go func() {
		defer close(a.listenerDone)
		for ev := range ch {
			a.logger.Debug("cache event", "type", string(ev.Type), "paths", strings.Join(ev.Paths(), ","))
		}
	}()
	return nil
}

func currentUser(users vfs.StaticUserDirectory) vfs.User {
	id := os.Getenv("USER")
	if u, err := user.Current(); err == nil {
		id = u.Username
	}
	name, _ := users.UserName(context.Background(), id)
	return vfs.User{ID: id, Name: name}
}

// fail records err on the operation and passes it through.
func (a *VFSApp) fail(err error) error {
	if err != nil {
		a.op.Fail()
	}
	return err
}

// Project resolves an offline project by name.
func (a *VFSApp) Project(ctx context.Context, name string) (*vfs.Project, error) {
	p, err := a.db.ReadProjectByName(ctx, name)
	if errors.Is(err, vfs.ErrNotFound) {
		return nil, fmt.Errorf("project %q does not exist; create it with 'vfs project create'", name)
	}
	if err != nil {
		return nil, a.fail(err)
	}
	return p, nil
}

// projectOrOnline resolves name, or the online project when online is set.
func (a *VFSApp) projectOrOnline(ctx context.Context, name string, online bool) (*vfs.Project, error) {
	if online {
		return vfs.OnlineProject(), nil
	}
	return a.Project(ctx, name)
}

// CreateProject registers an offline project scoped to paths.
func (a *VFSApp) CreateProject(ctx context.Context, name, description string, paths []string) (*vfs.Project, error) {
	if len(paths) == 0 {
		paths = []string{"/"}
	}
	p, err := a.db.CreateProject(ctx, vfs.Project{
		Name:          name,
		Description:   description,
		ResourcePaths: paths,
		CreatedAt:     time.Now(),
	})
	return p, a.fail(err)
}

func (a *VFSApp) Projects(ctx context.Context) ([]*vfs.Project, error) {
	projects, err := a.db.ReadProjects(ctx)
	return projects, a.fail(err)
}

func (a *VFSApp) MakeFolder(ctx context.Context, projectName, path string) (vfs.Resource, error) {
	p, err := a.Project(ctx, projectName)
	if err != nil {
		return vfs.Resource{}, err
	}
	res, err := a.service.CreateFolder(ctx, p, path, a.user)
	return res, a.fail(err)
}

// Put stores the content of localFile at path, creating the file or
// replacing the content of an existing one.
func (a *VFSApp) Put(ctx context.Context, projectName, path, localFile string) (vfs.Resource, error) {
	p, err := a.Project(ctx, projectName)
	if err != nil {
		return vfs.Resource{}, err
	}
	content, err := os.ReadFile(localFile)
	if err != nil {
		return vfs.Resource{}, a.fail(fmt.Errorf("reading %s: %w", localFile, err))
	}

	_, err = a.db.ReadResource(ctx, p, path, false)
	switch {
	case err == nil:
		res, err := a.service.WriteFile(ctx, p, path, content, a.user)
		return res, a.fail(err)
	case errors.Is(err, vfs.ErrNotFound):
		res, err := a.service.CreateFile(ctx, p, path, resourceType(path), content, a.user)
		return res, a.fail(err)
	default:
		return vfs.Resource{}, a.fail(err)
	}
}

// resourceType guesses the resource type from the file extension.
func resourceType(name string) vfs.ResourceType {
	ext := strings.ToLower(path.Ext(name))
	if ext == ".xml" {
		return vfs.TypeXML
	}
	ct := mime.TypeByExtension(ext)
	switch {
	case strings.HasPrefix(ct, "image/"):
		return vfs.TypeImage
	case strings.HasPrefix(ct, "text/"), ct == "application/javascript", ct == "application/json":
		return vfs.TypePlain
	case ct == "":
		return vfs.TypePlain
	default:
		return vfs.TypeBinary
	}
}

func (a *VFSApp) Remove(ctx context.Context, projectName, path string) error {
	p, err := a.Project(ctx, projectName)
	if err != nil {
		return err
	}
	return a.fail(a.service.DeleteResource(ctx, p, path, a.user))
}

func (a *VFSApp) Move(ctx context.Context, projectName, source, destination string) error {
	p, err := a.Project(ctx, projectName)
	if err != nil {
		return err
	}
	return a.fail(a.service.MoveResource(ctx, p, source, destination, a.user))
}

// Link creates a sibling of source at path sharing its content.
func (a *VFSApp) Link(ctx context.Context, projectName, source, path string) (vfs.Resource, error) {
	p, err := a.Project(ctx, projectName)
	if err != nil {
		return vfs.Resource{}, err
	}
	res, err := a.service.CreateSibling(ctx, p, source, path, a.user)
	return res, a.fail(err)
}

func (a *VFSApp) List(ctx context.Context, projectName, path string, online bool) ([]vfs.Resource, error) {
	p, err := a.projectOrOnline(ctx, projectName, online)
	if err != nil {
		return nil, err
	}
	children, err := a.service.ListChildren(ctx, p, path)
	return children, a.fail(err)
}

// Cat returns the content of the file at path.
func (a *VFSApp) Cat(ctx context.Context, projectName, path string, online bool) ([]byte, error) {
	p, err := a.projectOrOnline(ctx, projectName, online)
	if err != nil {
		return nil, err
	}
	res, err := a.service.ReadResource(ctx, p, path)
	if err != nil {
		return nil, a.fail(err)
	}
	if res.IsFolder() {
		return nil, a.fail(fmt.Errorf("%s is a folder", res.RootPath))
	}
	return res.Content, nil
}

// SetProperty sets name on the resource at path. With shared set the value
// is stored on the resource record and seen by every sibling; otherwise it
// is stored on the structure record of this path only.
func (a *VFSApp) SetProperty(ctx context.Context, projectName, path, name, value string, shared bool) error {
	p, err := a.Project(ctx, projectName)
	if err != nil {
		return err
	}
	prop := vfs.Property{Name: name, AutoCreateDefinition: true}
	switch {
	case value == "" && shared:
		prop.DeleteResourceValue = true
	case value == "":
		prop.DeleteStructureValue = true
	case shared:
		prop.ResourceValue = value
	default:
		prop.StructureValue = value
	}
	return a.fail(a.service.SetProperty(ctx, p, path, prop))
}

// Publish publishes the named project, or only the resource at direct when
// it is set. A direct publish runs the project as a direct publish project.
func (a *VFSApp) Publish(ctx context.Context, projectName, direct string, noBackup bool, report vfs.Report) ([]string, error) {
	p, err := a.Project(ctx, projectName)
	if err != nil {
		return nil, err
	}
	req := vfs.PublishRequest{
		Project:       p,
		User:          a.user,
		BackupEnabled: a.cfg.Publish.BackupEnabled && !noBackup,
		MaxVersions:   a.cfg.Publish.MaxVersions,
		Report:        report,
		ExportPoints:  a.cfg.ExportPoints,
	}
	if direct != "" {
		res, err := a.db.ReadResource(ctx, p, direct, true)
		if err != nil {
			return nil, a.fail(fmt.Errorf("reading direct publish resource %s: %w", direct, err))
		}
		req.DirectPublishResource = &res
		directProject := *p
		directProject.Type = vfs.ProjectDirectPublish
		req.Project = &directProject
	}

	changed, err := a.publisher.PublishProject(ctx, req)
	if err != nil {
		return nil, a.fail(err)
	}
	return changed, nil
}

func (a *VFSApp) History(ctx context.Context, publishID int) ([]vfs.PublishHistoryEntry, error) {
	entries, err := a.service.History(ctx, publishID)
	return entries, a.fail(err)
}

func (a *VFSApp) Versions(ctx context.Context, path string) ([]vfs.BackupResource, error) {
	versions, err := a.service.Versions(ctx, path)
	return versions, a.fail(err)
}

func (a *VFSApp) BrokenLinks(ctx context.Context, projectName string, online bool) ([]vfs.Relation, error) {
	p, err := a.projectOrOnline(ctx, projectName, online)
	if err != nil {
		return nil, err
	}
	links, err := a.service.BrokenLinks(ctx, p)
	return links, a.fail(err)
}

// Close writes the metrics textfile and releases the event bus, the
// database and the log file.
func (a *VFSApp) Close() error {
	var errs []error

	if path := a.cfg.Metrics.Textfile; path != "" {
		if err := a.metrics.WriteTextfile(path); err != nil {
			errs = append(errs, err)
		}
	}

	if err := a.bus.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing event bus: %w", err))
	}
	if a.stopListener != nil {
		a.stopListener()
		<-a.listenerDone
	}

	if err := a.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing database: %w", err))
	}

	a.logger.Info("operation finished", "operation", a.op.Name, "status", a.op.Status,
		"elapsed", time.Since(a.op.Started).Round(time.Millisecond).String())
	if a.logFile != nil {
		a.logFile.Close()
	}
	return errors.Join(errs...)
}

// MigrateDatabase applies pending schema migrations to the configured
// database.
func MigrateDatabase(cfg *config.Config) error {
	db, err := database.NewDatabaseFromConfig(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}
	return nil
}

// InitKeys generates the export encryption key pair.
func InitKeys(cfg *config.Config, passphrase string) error {
	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return err
	}
	if enc.IsConfigured() {
		return fmt.Errorf("encryption keys already exist at %s", cfg.Encryption.PublicKeyPath)
	}
	if err := enc.Setup(passphrase); err != nil {
		return fmt.Errorf("generating keys: %w", err)
	}
	return nil
}
