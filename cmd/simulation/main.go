package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	minOrders  = 50
	maxOrders  = 300
	numWorkers = 5
)

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	// Configure pretty logging
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// routeStats tracks performance statistics for an API endpoint
type routeStats struct {
	name       string
	durations  []time.Duration
	totalCalls int
	failures   int
}

// addDuration records a new duration measurement for the route
func (rs *routeStats) addDuration(d time.Duration) {
	rs.durations = append(rs.durations, d)
	rs.totalCalls++
}

// calculate computes performance statistics from recorded durations
// Returns min, max, mean, median, 95th percentile, and 99th percentile durations
func (rs *routeStats) calculate() (min, max, mean, median, p95, p99 time.Duration) {
	if len(rs.durations) == 0 {
		return 0, 0, 0, 0, 0, 0
	}

	// Sort durations for percentile calculations
	sort.Slice(rs.durations, func(i, j int) bool {
		return rs.durations[i] < rs.durations[j]
	})

	min = rs.durations[0]
	max = rs.durations[len(rs.durations)-1]

	// Calculate mean
	var sum time.Duration
	for _, d := range rs.durations {
		sum += d
	}
	mean = sum / time.Duration(len(rs.durations))

	// Calculate median
	median = rs.durations[len(rs.durations)/2]

	// Calculate percentiles
	p95idx := int(math.Ceil(float64(len(rs.durations))*0.95)) - 1
	p99idx := int(math.Ceil(float64(len(rs.durations))*0.99)) - 1
	p95 = rs.durations[p95idx]
	p99 = rs.durations[p99idx]

	return
}

// simulationClient handles HTTP communication with the matching engine
type simulationClient struct {
	intakeURL string
	queryURL  string
	client    *http.Client

	mu    sync.Mutex
	stats map[string]*routeStats
}

func newSimulationClient() *simulationClient {
	return &simulationClient{
		intakeURL: envOr("INTAKE_URL", "http://localhost:8080"),
		queryURL:  envOr("QUERY_URL", "http://localhost:8081"),
		client:    &http.Client{Timeout: 10 * time.Second},
		stats: map[string]*routeStats{
			"place":     {name: "Place Order"},
			"modify":    {name: "Modify Order"},
			"cancel":    {name: "Cancel Order"},
			"get":       {name: "Get Order"},
			"orderbook": {name: "Order Book Snapshot"},
		},
	}
}

func (sc *simulationClient) record(route string, d time.Duration, failed bool) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	rs := sc.stats[route]
	rs.addDuration(d)
	if failed {
		rs.failures++
	}
}

// apiEnvelope mirrors the server's response wrapper
type apiEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type orderData struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

func (sc *simulationClient) do(route, method, url string, body interface{}) (*apiEnvelope, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := sc.client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		sc.record(route, elapsed, true)
		return nil, err
	}
	defer resp.Body.Close()

	var envelope apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		sc.record(route, elapsed, true)
		return nil, err
	}
	sc.record(route, elapsed, !envelope.Success)

	if !envelope.Success {
		return &envelope, fmt.Errorf("request rejected: %s", envelope.Error.Code)
	}
	return &envelope, nil
}

// placeOrder submits a randomized limit order around the moving midprice
func (sc *simulationClient) placeOrder(midCents int64) (string, error) {
	side := "buy"
	offset := -rand.Int63n(80) // bids skew below mid
	if rand.Intn(2) == 1 {
		side = "sell"
		offset = rand.Int63n(80) // asks skew above mid
	}
	priceCents := midCents + offset + rand.Int63n(21) - 10
	if priceCents < 1 {
		priceCents = 1
	}

	body := map[string]interface{}{
		"side":     side,
		"quantity": rand.Int63n(100) + 1,
		"price":    fmt.Sprintf("%d.%02d", priceCents/100, priceCents%100),
	}

	envelope, err := sc.do("place", http.MethodPost, sc.intakeURL+"/orders/", body)
	if err != nil {
		return "", err
	}

	var order orderData
	if err := json.Unmarshal(envelope.Data, &order); err != nil {
		return "", err
	}
	return order.OrderID, nil
}

func (sc *simulationClient) modifyOrder(orderID string, midCents int64) error {
	priceCents := midCents + rand.Int63n(41) - 20
	if priceCents < 1 {
		priceCents = 1
	}
	body := map[string]interface{}{
		"price": fmt.Sprintf("%d.%02d", priceCents/100, priceCents%100),
	}
	_, err := sc.do("modify", http.MethodPut, sc.intakeURL+"/orders/"+orderID+"/", body)
	return err
}

func (sc *simulationClient) cancelOrder(orderID string) error {
	_, err := sc.do("cancel", http.MethodDelete, sc.intakeURL+"/orders/"+orderID+"/", nil)
	return err
}

func (sc *simulationClient) getOrder(orderID string) error {
	_, err := sc.do("get", http.MethodGet, sc.intakeURL+"/orders/"+orderID+"/", nil)
	return err
}

func (sc *simulationClient) fetchOrderBook() (json.RawMessage, error) {
	envelope, err := sc.do("orderbook", http.MethodGet, sc.queryURL+"/orderbook/?depth=5", nil)
	if err != nil {
		return nil, err
	}
	return envelope.Data, nil
}

// worker runs one stream of randomized order flow
func worker(id int, sc *simulationClient, orders int, wg *sync.WaitGroup) {
	defer wg.Done()

	logger := log.With().Int("worker", id).Logger()
	midCents := int64(10000) // start around 100.00

	var placed []string
	for i := 0; i < orders; i++ {
		// Drift the midprice slowly so the book keeps moving
		midCents += rand.Int63n(11) - 5
		if midCents < 100 {
			midCents = 100
		}

		orderID, err := sc.placeOrder(midCents)
		if err != nil {
			logger.Warn().Err(err).Msg("place failed")
			continue
		}
		placed = append(placed, orderID)

		// Occasionally rework earlier orders
		switch {
		case rand.Float64() < 0.15 && len(placed) > 1:
			target := placed[rand.Intn(len(placed))]
			if err := sc.modifyOrder(target, midCents); err != nil {
				logger.Debug().Err(err).Str("order_id", target).Msg("modify rejected")
			}
		case rand.Float64() < 0.15 && len(placed) > 1:
			target := placed[rand.Intn(len(placed))]
			if err := sc.cancelOrder(target); err != nil {
				logger.Debug().Err(err).Str("order_id", target).Msg("cancel rejected")
			}
		case rand.Float64() < 0.25:
			_ = sc.getOrder(placed[rand.Intn(len(placed))])
		}
	}

	logger.Info().Int("orders_placed", len(placed)).Msg("worker finished")
}

func main() {
	sc := newSimulationClient()

	totalOrders := minOrders + rand.Intn(maxOrders-minOrders+1)
	perWorker := totalOrders / numWorkers

	log.Info().
		Int("total_orders", totalOrders).
		Int("workers", numWorkers).
		Msg("starting simulation")

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go worker(i, sc, perWorker, &wg)
	}
	wg.Wait()

	book, err := sc.fetchOrderBook()
	if err != nil {
		log.Error().Err(err).Msg("failed to fetch final order book")
	} else {
		log.Info().RawJSON("orderbook", book).Msg("final order book")
	}

	log.Info().Dur("elapsed", time.Since(start)).Msg("simulation complete")
	printStats(sc)
}

func printStats(sc *simulationClient) {
	fmt.Println("\nRoute performance:")
	fmt.Printf("%-22s %8s %8s %10s %10s %10s %10s %10s %10s\n",
		"Route", "Calls", "Failures", "Min", "Max", "Mean", "Median", "P95", "P99")

	for _, key := range []string{"place", "modify", "cancel", "get", "orderbook"} {
		rs := sc.stats[key]
		min, max, mean, median, p95, p99 := rs.calculate()
		fmt.Printf("%-22s %8d %8d %10s %10s %10s %10s %10s %10s\n",
			rs.name, rs.totalCalls, rs.failures,
			min.Round(time.Microsecond), max.Round(time.Microsecond),
			mean.Round(time.Microsecond), median.Round(time.Microsecond),
			p95.Round(time.Microsecond), p99.Round(time.Microsecond))
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
