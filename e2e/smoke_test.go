//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/docker/docker/api/types/container"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const repoRootRel = ".."   // relative to ./e2e
const mainPkgRel = "./cmd" // main.go lives in cmd/

func TestSmoke_DetectFlow(t *testing.T) {
	repoRoot := repoRootPath(t)

	// Start SQLite "service" container that creates a DB file in a host temp dir
	sqlitePath := startSQLite(t)
	dataPath := filepath.Join(repoRoot, "api_test_data.json")

	bin := buildBinary(t, repoRoot)
	addr := pickFreeAddr(t)

	cmd := startServer(t, bin,
		"HTTP_ADDR="+addr,
		"DB_DRIVER=sqlite3",
		"SQLITE_PATH="+sqlitePath,
		"TEST_DATA_PATH="+dataPath,
		"TIMEZONE=UTC",
	)

	client := &http.Client{Timeout: 5 * time.Second}
	base := "http://" + addr

	waitForOK(t, client, base+"/healthz", 10*time.Second)

	var health map[string]string
	getJSON(t, client, base+"/healthz", http.StatusOK, &health)
	if health["status"] != "ok" {
		t.Fatalf("healthz status=%q want=%q", health["status"], "ok")
	}

	var sample struct {
		TotalObservations int               `json:"total_observations"`
		Stations          []string          `json:"stations"`
		Observations      []json.RawMessage `json:"observations"`
	}
	getJSON(t, client, base+"/test-data", http.StatusOK, &sample)
	if sample.TotalObservations == 0 || len(sample.Stations) == 0 {
		t.Fatalf("sample data empty: total=%d stations=%d", sample.TotalObservations, len(sample.Stations))
	}

	// The sample dataset is itself a valid detection payload.
	payload, err := json.Marshal(map[string]any{"observations": sample.Observations, "threshold": 2.5})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	var detected struct {
		RunID             string `json:"run_id"`
		Status            string `json:"status"`
		TotalObservations int    `json:"total_observations"`
		TotalAnomalies    int    `json:"total_anomalies"`
	}
	postJSON(t, client, base+"/detect", payload, http.StatusOK, &detected)
	if detected.TotalObservations != sample.TotalObservations {
		t.Fatalf("total_observations=%d want=%d", detected.TotalObservations, sample.TotalObservations)
	}
	if detected.TotalAnomalies == 0 || detected.Status != "anomalies_found" {
		t.Fatalf("sample data should contain anomalies: %+v", detected)
	}

	var run struct {
		ID        string            `json:"id"`
		Anomalies []json.RawMessage `json:"anomalies"`
	}
	getJSON(t, client, base+"/api/v1/detections/"+detected.RunID, http.StatusOK, &run)
	if run.ID != detected.RunID || len(run.Anomalies) != detected.TotalAnomalies {
		t.Fatalf("stored run id=%q anomalies=%d; want id=%q anomalies=%d",
			run.ID, len(run.Anomalies), detected.RunID, detected.TotalAnomalies)
	}

	postJSON(t, client, base+"/detect", []byte(`{"observations":[]}`), http.StatusBadRequest, nil)

	stopServer(t, cmd)
}

func TestSmoke_MQTTAlerts(t *testing.T) {
	repoRoot := repoRootPath(t)
	brokerHost, brokerPort := startMosquitto(t)

	alerts := make(chan []byte, 16)
	sub := mqtt.NewClient(mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%s", brokerHost, brokerPort)).
		SetClientID("e2e-subscriber"))
	if tok := sub.Connect(); !tok.WaitTimeout(10*time.Second) || tok.Error() != nil {
		t.Fatalf("subscriber connect: %v", tok.Error())
	}
	t.Cleanup(func() { sub.Disconnect(250) })
	tok := sub.Subscribe("e2e/+/anomalies", 1, func(_ mqtt.Client, m mqtt.Message) {
		select {
		case alerts <- m.Payload():
		default:
		}
	})
	if !tok.WaitTimeout(10*time.Second) || tok.Error() != nil {
		t.Fatalf("subscribe: %v", tok.Error())
	}

	bin := buildBinary(t, repoRoot)
	addr := pickFreeAddr(t)
	cmd := startServer(t, bin,
		"HTTP_ADDR="+addr,
		"SQLITE_PATH="+filepath.Join(t.TempDir(), "anomaly.db"),
		"MQTT_BROKER="+brokerHost,
		"MQTT_PORT="+brokerPort,
		"MQTT_TOPIC_PREFIX=e2e",
	)

	client := &http.Client{Timeout: 5 * time.Second}
	base := "http://" + addr
	waitForOK(t, client, base+"/healthz", 10*time.Second)

	body := []byte(`{"observations":[` +
		`{"station_id":"574","timestamp":1729580400,"temp_out":15.2,"out_hum":80,"wind_speed":5.5,"bar":1013.2,"rain":0},` +
		`{"station_id":"574","timestamp":1729581000,"temp_out":15.8,"out_hum":80,"wind_speed":5.5,"bar":1013.2,"rain":0},` +
		`{"station_id":"574","timestamp":1729581600,"temp_out":16.2,"out_hum":80,"wind_speed":5.5,"bar":1013.2,"rain":0},` +
		`{"station_id":"574","timestamp":1729582200,"temp_out":16.5,"out_hum":80,"wind_speed":5.5,"bar":1013.2,"rain":0},` +
		`{"station_id":"574","timestamp":1729582800,"temp_out":17.0,"out_hum":80,"wind_speed":5.5,"bar":1013.2,"rain":0},` +
		`{"station_id":"574","timestamp":1729583400,"temp_out":100.0,"out_hum":80,"wind_speed":5.5,"bar":1013.2,"rain":0},` +
		`{"station_id":"574","timestamp":1729584000,"temp_out":17.8,"out_hum":80,"wind_speed":5.5,"bar":1013.2,"rain":0},` +
		`{"station_id":"574","timestamp":1729584600,"temp_out":18.2,"out_hum":80,"wind_speed":5.5,"bar":1013.2,"rain":0},` +
		`{"station_id":"574","timestamp":1729585200,"temp_out":18.5,"out_hum":80,"wind_speed":5.5,"bar":1013.2,"rain":0},` +
		`{"station_id":"574","timestamp":1729585800,"temp_out":19.0,"out_hum":80,"wind_speed":5.5,"bar":1013.2,"rain":0}` +
		`]}`)

	// The publisher may still be finishing its first connect.
	deadline := time.Now().Add(15 * time.Second)
	for {
		postJSON(t, client, base+"/detect", body, http.StatusOK, nil)
		select {
		case payload := <-alerts:
			var alert map[string]any
			if err := json.Unmarshal(payload, &alert); err != nil {
				t.Fatalf("decode alert: %v", err)
			}
			if alert["station_id"] != "574" || alert["variable"] != "temp_out" {
				t.Fatalf("alert=%v", alert)
			}
			stopServer(t, cmd)
			return
		case <-time.After(time.Second):
		}
		if time.Now().After(deadline) {
			t.Fatal("no anomaly alert received")
		}
	}
}

func startServer(t *testing.T, bin string, env ...string) *exec.Cmd {
	t.Helper()

	cmd := exec.Command(bin)
	cmd.Env = append(os.Environ(), "APP_ENV=dev", "LOG_LEVEL=info")
	cmd.Env = append(cmd.Env, env...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		_, _ = cmd.Process.Wait()
	})
	return cmd
}

func getJSON(t *testing.T, client *http.Client, url string, wantStatus int, out any) {
	t.Helper()

	resp, err := client.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	decodeResponse(t, resp, wantStatus, out)
}

func postJSON(t *testing.T, client *http.Client, url string, body []byte, wantStatus int, out any) {
	t.Helper()

	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	decodeResponse(t, resp, wantStatus, out)
}

func decodeResponse(t *testing.T, resp *http.Response, wantStatus int, out any) {
	t.Helper()

	if resp.StatusCode != wantStatus {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("%s %s status=%d want=%d body=%s",
			resp.Request.Method, resp.Request.URL, resp.StatusCode, wantStatus, string(b))
	}
	if out == nil {
		return
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode json: %v", err)
	}
}

func startMosquitto(t *testing.T) (host, port string) {
	t.Helper()

	ctx := context.Background()
	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: tc.ContainerRequest{
			// 1.6 accepts anonymous clients on 1883 without a config file.
			Image:        "eclipse-mosquitto:1.6",
			ExposedPorts: []string{"1883/tcp"},
			WaitingFor:   wait.ForListeningPort("1883/tcp").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start mosquitto container: %v", err)
	}
	t.Cleanup(func() {
		_ = c.Terminate(ctx)
	})

	host, err = c.Host(ctx)
	if err != nil {
		t.Fatalf("mosquitto host: %v", err)
	}
	mapped, err := c.MappedPort(ctx, "1883/tcp")
	if err != nil {
		t.Fatalf("mosquitto port: %v", err)
	}
	return host, mapped.Port()
}

func startSQLite(t *testing.T) string {
	t.Helper()

	// Host temp dir that will contain anomaly.db
	hostDir := t.TempDir()
	dbPath := filepath.Join(hostDir, "anomaly.db")

	ctx := context.Background()

	req := tc.ContainerRequest{
		Image:      "nouchka/sqlite3:latest",
		WorkingDir: "/data",
		// Create the DB file and keep container alive
		Entrypoint: []string{"sh", "-c"},
		Cmd: []string{
			"sqlite3 /data/anomaly.db \"PRAGMA journal_mode=WAL; PRAGMA foreign_keys=ON;\" && " +
				"echo 'sqlite ready' && " +
				"tail -f /dev/null",
		},

		HostConfigModifier: func(hc *container.HostConfig) {
			hc.Binds = append(hc.Binds, hostDir+":/data")
		},
		WaitingFor: wait.ForLog("sqlite ready").WithStartupTimeout(30 * time.Second),
	}

	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("start sqlite container: %v", err)
	}

	t.Cleanup(func() {
		_ = c.Terminate(ctx)
	})

	// Ensure file exists on host (container created it in the bind mount)
	if _, err := os.Stat(dbPath); err != nil {
		t.Fatalf("sqlite db file not created: %v", err)
	}

	return dbPath
}

func repoRootPath(t *testing.T) string {
	t.Helper()

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}

	repo := filepath.Clean(filepath.Join(wd, repoRootRel))
	if _, err := os.Stat(filepath.Join(repo, "go.mod")); err != nil {
		t.Fatalf("repo root %q does not contain go.mod: %v", repo, err)
	}

	return repo
}

func buildBinary(t *testing.T, repoRoot string) string {
	t.Helper()

	tmp := t.TempDir()
	out := filepath.Join(tmp, "weather-anomaly-server")

	build := exec.Command("go", "build", "-o", out, mainPkgRel)
	build.Dir = repoRoot
	build.Env = os.Environ()

	b, err := build.CombinedOutput()
	if err != nil {
		t.Fatalf("go build failed: %v\n%s", err, string(b))
	}

	return out
}

func pickFreeAddr(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen :0: %v", err)
	}
	defer ln.Close()

	return ln.Addr().String()
}

func waitForOK(t *testing.T, client *http.Client, url string, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := client.Get(url)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("server not healthy after %s: %s", timeout, url)
}

func stopServer(t *testing.T, cmd *exec.Cmd) {
	t.Helper()

	_ = cmd.Process.Signal(syscall.SIGTERM)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		t.Fatalf("server did not exit in time")
	case err := <-done:
		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				t.Fatalf("server exited non-zero: %v", err)
			}
			t.Fatalf("server wait error: %v", err)
		}
	}
}
