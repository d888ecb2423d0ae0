// Package main implements fixture-backed stand-ins for the downstream
// business microservices the coordinator dispatches to in local/test
// runs: customer, pricing, insurance, and rental. Each route and its
// canned calculation are grounded one-for-one on the fixture services
// under original_source/fixtures/*/main.py.
//
// Usage:
//
//	mock-services -fixtures /path/to/fixtures -port 9000
//
// Fixture layout (JSON, one file per service):
//
//	customers.json   {"customers": [{"id": 2345, "customer_tier": "gold", "preferences": {...}}, ...]}
//	vehicles.json     [{"type": "SUV", "base_price": 80.0}, ...]
//	rental.json       [{"vehicle_id": "v1", "type": "SUV", "available": true}, ...]
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

type customer struct {
	ID           int            `json:"id"`
	CustomerTier string         `json:"customer_tier"`
	Preferences  map[string]any `json:"preferences"`
}

type customerFixture struct {
	Customers []customer `json:"customers"`
}

type vehiclePrice struct {
	Type      string  `json:"type"`
	BasePrice float64 `json:"base_price"`
}

var tierMultiplier = map[string]float64{
	"platinum": 0.5,
	"gold":     0.7,
	"premium":  0.8,
	"under_18": 1.2,
}

var insuranceTierBase = map[string]float64{
	"platinum": 10,
	"gold":     15,
	"premium":  20,
	"basic":    30,
	"under_18": 50,
}

var insuranceVehicleMult = map[string]float64{
	"suv":   2.0,
	"sedan": 1.5,
	"golf":  1.2,
}

type server struct {
	customers customerFixture
	vehicles  []vehiclePrice
	rental    []map[string]any
}

func main() {
	fixtureDir := flag.String("fixtures", "", "directory containing fixture response files")
	port := flag.Int("port", 9000, "port to listen on")
	flag.Parse()

	if envDir := os.Getenv("MOCK_SERVICES_FIXTURES"); envDir != "" && *fixtureDir == "" {
		*fixtureDir = envDir
	}
	if *fixtureDir == "" {
		*fixtureDir = "/fixtures"
	}

	s, err := loadServer(*fixtureDir)
	if err != nil {
		log.Fatalf("failed to load fixtures from %s: %v", *fixtureDir, err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/customer/", s.handleCustomer)
	mux.HandleFunc("/pricing", s.handlePricing)
	mux.HandleFunc("/insurance", s.handleInsurance)
	mux.HandleFunc("/availability", s.handleAvailability)
	mux.HandleFunc("/health", s.handleHealth)

	addr := fmt.Sprintf(":%d", *port)
	log.Printf("mock-services listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}

func loadServer(dir string) (*server, error) {
	s := &server{}

	if data, err := os.ReadFile(filepath.Join(dir, "customers.json")); err == nil {
		if err := json.Unmarshal(data, &s.customers); err != nil {
			return nil, fmt.Errorf("parse customers.json: %w", err)
		}
	}
	if data, err := os.ReadFile(filepath.Join(dir, "vehicles.json")); err == nil {
		if err := json.Unmarshal(data, &s.vehicles); err != nil {
			return nil, fmt.Errorf("parse vehicles.json: %w", err)
		}
	}
	if data, err := os.ReadFile(filepath.Join(dir, "rental.json")); err == nil {
		if err := json.Unmarshal(data, &s.rental); err != nil {
			return nil, fmt.Errorf("parse rental.json: %w", err)
		}
	}

	return s, nil
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

// POST /customer/{customer_id}
func (s *server) handleCustomer(w http.ResponseWriter, r *http.Request) {
	idStr := strings.TrimPrefix(r.URL.Path, "/customer/")
	id, err := strconv.Atoi(idStr)
	if err != nil {
		writeJSON(w, map[string]string{"error": "invalid customer id"})
		return
	}

	for _, c := range s.customers.Customers {
		if c.ID == id {
			writeJSON(w, c)
			return
		}
	}
	writeJSON(w, map[string]string{"error": "Customer not found"})
}

type pricingRequest struct {
	VehicleType  string `json:"vehicle_type"`
	CustomerTier string `json:"customer_tier"`
}

// POST /pricing
func (s *server) handlePricing(w http.ResponseWriter, r *http.Request) {
	var req pricingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, map[string]string{"error": "invalid request body"})
		return
	}

	var basePrice float64
	found := false
	for _, v := range s.vehicles {
		if strings.EqualFold(v.Type, req.VehicleType) {
			basePrice = v.BasePrice
			found = true
			break
		}
	}
	if !found {
		writeJSON(w, map[string]string{"error": fmt.Sprintf("vehicle type '%s' not found in fixture", req.VehicleType)})
		return
	}

	multiplier, ok := tierMultiplier[strings.ToLower(req.CustomerTier)]
	if !ok {
		multiplier = 1.0
	}

	writeJSON(w, map[string]any{
		"vehicle_type":  req.VehicleType,
		"days":          1,
		"customer_tier": req.CustomerTier,
		"base_price":    basePrice,
		"multiplier":    multiplier,
		"total_price":   basePrice * multiplier,
	})
}

type insuranceRequest struct {
	VehicleType  string `json:"vehicle_type"`
	CustomerTier string `json:"customer_tier"`
}

// POST /insurance
func (s *server) handleInsurance(w http.ResponseWriter, r *http.Request) {
	var req insuranceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, map[string]string{"error": "invalid request body"})
		return
	}

	base, ok := insuranceTierBase[strings.ToLower(req.CustomerTier)]
	if !ok {
		base = 25
	}
	mult, ok := insuranceVehicleMult[strings.ToLower(req.VehicleType)]
	if !ok {
		mult = 1.5
	}

	writeJSON(w, map[string]any{
		"vehicle_type":   req.VehicleType,
		"customer_tier":  req.CustomerTier,
		"insurance_cost": base * mult,
	})
}

type rentalRequest struct {
	Location  string `json:"location"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// POST /availability
func (s *server) handleAvailability(w http.ResponseWriter, r *http.Request) {
	var req rentalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, map[string]string{"error": "invalid request body"})
		return
	}

	writeJSON(w, map[string]any{"vehicles": s.rental})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
