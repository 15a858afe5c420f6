// Setup & initialization.

package main

import (
	"encoding/json"
	"expvar"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	jcr "github.com/tinode/jsonco"

	"github.com/xmpub/pubsub/server/logs"
	"github.com/xmpub/pubsub/server/store"
)

// currentVersion is the version of the engine.
const currentVersion = "0.1.0"

type configType struct {
	// Address and port to expose the monitoring endpoint on.
	Listen string `json:"listen"`
	// URL path of the expvar endpoint, "-" to disable.
	ExpvarPath string `json:"expvar"`
	// Snowflake worker id of this process, 0..1023.
	WorkerID int `json:"worker_id"`

	Engine      EngineConfig    `json:"engine"`
	StoreConfig json.RawMessage `json:"store_config"`
}

func main() {
	logs.Init()
	logs.Info.Printf("Pubsub engine v%s pid=%d, procs=%d", currentVersion,
		os.Getpid(), runtime.GOMAXPROCS(runtime.NumCPU()))

	var configfile = flag.String("config", "./pubsub.conf", "Path to config file.")
	var listenOn = flag.String("listen", "", "Override config address and port to listen on.")
	var initDb = flag.Bool("init_db", false, "Create the database schema and exit.")
	var reset = flag.Bool("reset_db", false, "Drop an existing database before creating it (with -init_db).")
	flag.Parse()

	config := loadConfig(*configfile)
	if *listenOn != "" {
		config.Listen = *listenOn
	}

	if *initDb {
		if err := store.InitDb(config.StoreConfig, *reset); err != nil {
			logs.Err.Fatalln("Failed to initialize the database:", err)
		}
		logs.Info.Println("Database initialized")
		return
	}

	if err := store.Open(config.WorkerID, config.StoreConfig); err != nil {
		logs.Err.Fatalln("Failed to connect to persistent storage:", err)
	}
	logs.Info.Println("Connected to database, adapter:", store.GetAdapterName())

	mux := http.NewServeMux()
	if config.ExpvarPath == "" {
		config.ExpvarPath = "/debug/vars"
	}
	statsInit(mux, config.ExpvarPath)
	statsRegisterInt("LiveNodes")
	statsRegisterInt("TotalNodeLoads")
	statsRegisterInt("FailedNodeLoads")
	statsRegisterInt("CacheEvictions")
	statsRegisterInt("DirtyEvictionSkips")
	statsRegisterInt("SavedNodes")
	statsRegisterInt("FailedSaves")
	statsRegisterInt("NotificationsSent")
	statsRegisterInt("LastItemsSent")
	statsRegisterInt("CreatedNodes")
	statsRegisterInt("DeletedNodes")
	statsRegisterInt("PublishedItems")
	if dbStats := store.DbStats(); dbStats != nil {
		expvar.Publish("DbStats", expvar.Func(dbStats))
	}

	engine := NewEngine(config.Engine, logSender{}, nullPresence{}, nullRoster{})

	if config.Listen != "" {
		go func() {
			logs.Info.Printf("Monitoring endpoint at http://%s%s", config.Listen, config.ExpvarPath)
			if err := http.ListenAndServe(config.Listen, mux); err != nil {
				logs.Err.Println("Monitoring endpoint failed:", err)
			}
		}()
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	sig := <-stop
	logs.Info.Println("Shutting down on signal:", sig)

	engine.Stop()
	statsShutdown()
	if err := store.Close(); err != nil {
		logs.Err.Println("Failed to close database connection(s):", err)
	} else {
		logs.Info.Println("Closed database connection(s)")
	}
}

// loadConfig reads and parses the config file, with line and char position
// reporting on parse errors.
func loadConfig(path string) configType {
	logs.Info.Printf("Using config from '%s'", path)

	file, err := os.Open(path)
	if err != nil {
		logs.Err.Fatalln("Failed to read config file:", err)
	}
	defer file.Close()

	var config configType
	jr := jcr.New(file)
	if err = json.NewDecoder(jr).Decode(&config); err != nil {
		switch jerr := err.(type) {
		case *json.UnmarshalTypeError:
			lnum, cnum, _ := jr.LineAndChar(jerr.Offset)
			logs.Err.Fatalf("Unmarshall error in config file in %s at %d:%d (offset %d bytes): %s",
				jerr.Field, lnum, cnum, jerr.Offset, jerr.Error())
		case *json.SyntaxError:
			lnum, cnum, _ := jr.LineAndChar(jerr.Offset)
			logs.Err.Fatalf("Syntax error in config file at %d:%d (offset %d bytes): %s",
				lnum, cnum, jerr.Offset, jerr.Error())
		default:
			logs.Err.Fatalln("Failed to parse config file:", err)
		}
	}
	return config
}
