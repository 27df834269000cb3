package main

import (
	"encoding/json"
	"flag"
	"io/ioutil"
	"log"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/go-chi/chi"
)

type Response struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

type Record struct {
	ID        string `json:"id"`
	Caller    string `json:"caller"`
	Operation string `json:"operation"`
}

type SequenceResponse struct {
	Sequence uint64 `json:"sequence"`
}

type ServerConfig struct {
	ServerAddress string `env:"AUDIT_SYSTEM_ADDRESS"`
}

func NewServerConfig() (*ServerConfig, error) {
	cfg := ServerConfig{}
	err := env.Parse(&cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func isFlagPassed(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

func (c *ServerConfig) ParseFlags() {
	a := flag.String("a", ":7070", "Server address")
	flag.Parse()
	if isFlagPassed("a") || c.ServerAddress == "" {
		c.ServerAddress = *a
	}
}

func HandleMockAuditService() http.HandlerFunc {
	var mu sync.Mutex
	var sequence uint64
	return func(w http.ResponseWriter, r *http.Request) {
		// mock http status 500 error
		chance500 := 20
		if chance500 > rand.Intn(100) {
			log.Println("responding with error 500")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		// mock normal behaviour
		b, err := ioutil.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		var record Record
		err = json.Unmarshal(b, &record)
		if err != nil {
			log.Println("responding with error 400")
			w.WriteHeader(http.StatusBadRequest)
			response400 := Response{
				Error: "Invalid record: not a JSON object",
			}
			resBody, _ := json.Marshal(response400)
			w.Write(resBody)
			return
		}
		if record.Operation == "" {
			log.Println("responding with error 422")
			w.WriteHeader(http.StatusUnprocessableEntity)
			response422 := Response{
				Error: "Illegal record: missing operation",
			}
			resBody, _ := json.Marshal(response422)
			w.Write(resBody)
			return
		}

		mu.Lock()
		sequence++
		response200 := SequenceResponse{Sequence: sequence}
		mu.Unlock()
		log.Println("responding with status 200")
		w.WriteHeader(http.StatusOK)
		resBody, _ := json.Marshal(response200)
		w.Write(resBody)
	}
}

func InitServer(cfg *ServerConfig) (server *http.Server, err error) {
	r := chi.NewRouter()
	r.Post("/api/records", HandleMockAuditService())
	srv := &http.Server{
		Addr:         cfg.ServerAddress,
		Handler:      r,
		IdleTimeout:  60 * time.Second,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	return srv, nil
}

func main() {
	rand.Seed(time.Now().UnixNano())
	cfg, err := NewServerConfig()
	if err != nil {
		log.Fatal(err)
	}
	cfg.ParseFlags()
	server, err := InitServer(cfg)
	if err != nil {
		log.Fatal(err)
	}
	log.Println("mock audit server start attempted")
	log.Fatal(server.ListenAndServe())
}
