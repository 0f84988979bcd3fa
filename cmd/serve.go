package cmd

import (
	"context"
	"fmt"
	"net/http"

	"github.com/catalystcommunity/app-utils-go/errorutils"
	"github.com/catalystcommunity/app-utils-go/logging"
	"github.com/docker/docker/client"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/mild-blue/shepherd/internal/audit"
	"github.com/mild-blue/shepherd/internal/config"
	"github.com/mild-blue/shepherd/internal/handlers"
	"github.com/mild-blue/shepherd/internal/ioexec"
	"github.com/mild-blue/shepherd/internal/jobstore"
	"github.com/mild-blue/shepherd/internal/messenger"
	"github.com/mild-blue/shepherd/internal/metrics"
	"github.com/mild-blue/shepherd/internal/objects"
	"github.com/mild-blue/shepherd/internal/sheep"
	"github.com/mild-blue/shepherd/internal/shepherd"
)

var ServeCommand = &cli.Command{
	Name:  "serve",
	Usage: "Run the Shepherd dispatcher",
	Action: func(ctx *cli.Context) error {
		return Serve(config.FromEnv())
	},
}

// Serve wires up the Storage Adapter, Job Store, sheep fleet, Messenger
// sockets, scheduler, and HTTP facade, then blocks serving the API Facade
// (spec.md §4).
func Serve(cfg config.Config) error {
	if cfg.Debug {
		logging.Log.SetLevel(logrus.DebugLevel)
	}

	fleet, err := config.LoadFleet(cfg.FleetFile)
	if err != nil {
		return fmt.Errorf("loading fleet file: %w", err)
	}

	store, err := newObjectStore(cfg)
	if err != nil {
		return fmt.Errorf("initializing object store: %w", err)
	}

	auditer := audit.Sink(audit.NewNoop())
	if cfg.AuditDatabaseURI != "" {
		sink, _, err := audit.Connect(context.Background(), cfg.AuditDatabaseURI)
		if err != nil {
			logging.Log.WithError(err).Warn("audit log unavailable, continuing without it")
		} else {
			auditer = sink
			logging.Log.Info("audit log connected")
		}
	}

	poolSize := cfg.WorkerPoolSize
	if poolSize <= 0 {
		poolSize = 2 * len(fleet.Sheep)
		if poolSize < 2 {
			poolSize = 2
		}
	}
	pool := ioexec.New(poolSize)
	defer pool.Stop()

	reg := metrics.New()

	jobs := jobstore.New(jobstore.DefaultRecentHistoryBound)

	schedCfg := shepherd.DefaultConfig()
	schedCfg.QueueCapacity = cfg.QueueCapacity
	schedCfg.HandshakeTimeout = cfg.HandshakeTimeout
	schedCfg.StorageTimeout = cfg.StorageTimeout

	sched := shepherd.New(schedCfg, store, jobs, pool, auditer, reg)

	var dockerCli *client.Client
	for _, spec := range fleet.Sheep {
		if spec.Kind == "docker" && dockerCli == nil {
			dockerCli, err = client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
			if err != nil {
				return fmt.Errorf("initializing docker client: %w", err)
			}
		}
	}

	for _, spec := range fleet.Sheep {
		sheepCfg := spec.ToSheepConfig()
		socket := messenger.NewSocket(fmt.Sprintf("%s:%d", sheepCfg.Endpoint.Host, sheepCfg.Endpoint.Port))
		if err := socket.Listen(); err != nil {
			return fmt.Errorf("binding messenger socket for sheep %q: %w", sheepCfg.ID, err)
		}
		sheepCfg.Socket = socket
		sheepCfg.HandshakeTimeout = cfg.HandshakeTimeout

		var worker sheep.Sheep
		switch sheepCfg.Kind {
		case sheep.KindBare:
			worker = sheep.NewBareSheep(sheepCfg)
		case sheep.KindDocker:
			worker = sheep.NewDockerSheep(sheepCfg, dockerCli)
		default:
			return fmt.Errorf("sheep %q has unsupported kind %q", sheepCfg.ID, sheepCfg.Kind)
		}

		sched.Register(worker, socket)
		logging.Log.WithField("sheep_id", sheepCfg.ID).WithField("kind", sheepCfg.Kind).Info("registered sheep")
	}

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sched.Run(runCtx)
	defer sched.Stop()

	handler := handlers.NewRouter(sched, reg)
	logging.Log.Infof("starting HTTP server on port %d", cfg.Port)

	err = http.ListenAndServe(fmt.Sprintf(":%d", cfg.Port), handler)
	errorutils.LogOnErr(nil, "ListenAndServe exited with: ", err)
	return err
}

func newObjectStore(cfg config.Config) (objects.Store, error) {
	switch cfg.ObjectStoreKind {
	case "s3":
		return objects.NewS3Store(context.Background(), objects.S3Config{
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
	case "memory":
		return objects.NewMemoryStore(), nil
	default:
		return objects.NewFilesystemStore(cfg.FilesystemRoot)
	}
}
