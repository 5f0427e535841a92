// Command mock-engine runs a deterministic electronic-structure engine
// for integration testing. It speaks the remote engine protocol
// (POST /v1/singlepoint, POST /v1/optimize) and derives every number
// from the request, so repeated calls return identical results.
//
// Special inputs:
//
//	xc "fail"       - engine rejects the input (422, kind "input")
//	xc "crash"      - engine fails internally (500)
//	xc "unstable"   - result reports converged=false
//	basis "slow"    - waits 2s before answering
//
// Configuration:
//
//	MOCK_PORT - Listen port (default: 9090)
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/cloudcompchem/cloudcompchem/pkg/api"
	"github.com/cloudcompchem/cloudcompchem/pkg/provider"
)

func main() {
	port := os.Getenv("MOCK_PORT")
	if port == "" {
		port = "9090"
	}

	srv := &http.Server{Addr: ":" + port, Handler: newMux(), ReadHeaderTimeout: 10 * time.Second}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("mock engine starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("mock engine failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("mock engine shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
}

func newMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/singlepoint", func(w http.ResponseWriter, r *http.Request) {
		handleCalculation(w, r, false)
	})
	mux.HandleFunc("POST /v1/optimize", func(w http.ResponseWriter, r *http.Request) {
		handleCalculation(w, r, true)
	})
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})
	return mux
}

func handleCalculation(w http.ResponseWriter, r *http.Request, optimize bool) {
	var req provider.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeEngineError(w, http.StatusBadRequest, provider.ErrorKindInput, "malformed request: "+err.Error())
		return
	}

	switch req.XC {
	case "fail":
		writeEngineError(w, http.StatusUnprocessableEntity, provider.ErrorKindInput, "unknown functional")
		return
	case "crash":
		writeEngineError(w, http.StatusInternalServerError, provider.ErrorKindInternal, "segmentation fault in integral code")
		return
	}
	if req.Basis == "slow" {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
			return
		}
	}

	atoms, err := parseAtoms(req.Atom)
	if err != nil {
		writeEngineError(w, http.StatusUnprocessableEntity, provider.ErrorKindInput, err.Error())
		return
	}
	out, err := compute(atoms, req)
	if err != nil {
		writeEngineError(w, http.StatusUnprocessableEntity, provider.ErrorKindInput, err.Error())
		return
	}
	if optimize {
		out.Symbols = make([]string, len(atoms))
		out.Positions = make([][3]float64, len(atoms))
		for i, a := range atoms {
			out.Symbols[i] = a.symbol
			out.Positions[i] = a.position
		}
		// A "relaxed" structure sits slightly below the input energy.
		out.Energy -= 0.0125
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

type mockAtom struct {
	symbol   string
	number   int
	position [3]float64
}

// parseAtoms reads the engine atom string, "O 0 0 0; H 0 1 0".
func parseAtoms(s string) ([]mockAtom, error) {
	var atoms []mockAtom
	for _, part := range strings.Split(s, ";") {
		fields := strings.Fields(part)
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 4 {
			return nil, fmt.Errorf("cannot parse atom %q", strings.TrimSpace(part))
		}
		z, ok := api.AtomicNumber(fields[0])
		if !ok {
			return nil, fmt.Errorf("unknown element %q", fields[0])
		}
		a := mockAtom{symbol: fields[0], number: z}
		for i := range 3 {
			f, err := strconv.ParseFloat(fields[i+1], 64)
			if err != nil {
				return nil, fmt.Errorf("bad coordinate %q", fields[i+1])
			}
			a.position[i] = f
		}
		atoms = append(atoms, a)
	}
	if len(atoms) == 0 {
		return nil, fmt.Errorf("no atoms")
	}
	return atoms, nil
}

// compute fabricates an energy and an orbital ladder consistent with the
// electron count and spin of the request.
func compute(atoms []mockAtom, req provider.Request) (*provider.Output, error) {
	electrons := -req.Charge
	energy := 0.0
	for _, a := range atoms {
		electrons += a.number
		energy -= 0.5 * float64(a.number*a.number)
	}
	if electrons < 0 || (electrons-req.Spin)%2 != 0 {
		return nil, fmt.Errorf("electron count %d and spin %d are inconsistent", electrons, req.Spin)
	}

	alpha := (electrons + req.Spin) / 2
	beta := (electrons - req.Spin) / 2
	nmo := alpha + 2

	out := &provider.Output{Energy: energy, Converged: req.XC != "unstable"}
	if req.Unrestricted {
		out.MOEnergy, out.MOOcc = ladder(nmo, alpha, 1)
		e, o := ladder(nmo, beta, 1)
		out.MOEnergy = append(out.MOEnergy, e...)
		out.MOOcc = append(out.MOOcc, o...)
	} else {
		out.MOEnergy, out.MOOcc = ladder(nmo, alpha, 2)
	}
	return out, nil
}

func ladder(n, occupied int, occupancy float64) ([]float64, []float64) {
	energies := make([]float64, n)
	occ := make([]float64, n)
	for i := range n {
		energies[i] = -10.0/float64(i+1) + 0.25*float64(i-occupied+1)
		if i < occupied {
			occ[i] = occupancy
		}
	}
	return energies, occ
}

func writeEngineError(w http.ResponseWriter, status int, kind, message string) {
	var body provider.ErrorBody
	body.Error.Kind = kind
	body.Error.Message = message
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
