// Package mqtt publishes the daily forecast to Home Assistant over MQTT:
// a discovery config plus one retained state blob, guarded so the broker
// only sees payloads that are both newer and actually changed.
package mqtt

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"solar_forecast/internal/engine"
)

// Config holds broker and topic settings.
type Config struct {
	BrokerURL string // e.g. tcp://localhost:1883
	Username  string
	Password  string
	ClientID  string

	// BaseTopic prefixes every published topic. Default "solar_forecast".
	BaseTopic string
	// DiscoveryPrefix is Home Assistant's discovery root. Default
	// "homeassistant".
	DiscoveryPrefix string

	ConnectTimeout time.Duration
	// RetainedWait bounds how long to wait for the broker to replay the
	// retained state during the freshness check.
	RetainedWait time.Duration
}

func (c Config) withDefaults() Config {
	if c.BaseTopic == "" {
		c.BaseTopic = "solar_forecast"
	}
	if c.DiscoveryPrefix == "" {
		c.DiscoveryPrefix = "homeassistant"
	}
	if c.ClientID == "" {
		c.ClientID = c.BaseTopic + "-publisher"
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.RetainedWait <= 0 {
		c.RetainedWait = 3 * time.Second
	}
	return c
}

// StateTopic carries the retained forecast blob.
func (c Config) StateTopic() string { return c.BaseTopic + "/forecast" }

// AvailabilityTopic carries the retained online/offline marker.
func (c Config) AvailabilityTopic() string { return c.BaseTopic + "/availability" }

// DiscoveryTopic is where Home Assistant picks up the sensor config.
func (c Config) DiscoveryTopic() string {
	return fmt.Sprintf("%s/sensor/%s_forecast/config", c.DiscoveryPrefix, c.BaseTopic)
}

// State is the published forecast shape. Sites and arrays are sorted by id
// so the canonical hash is stable across runs.
type State struct {
	GeneratedAt    time.Time   `json:"generated_at"`
	Date           string      `json:"date"`
	TotalEnergyKWh float64     `json:"total_energy_kwh"`
	Sites          []SiteState `json:"sites"`
}

type SiteState struct {
	ID             string       `json:"id"`
	TotalEnergyKWh float64      `json:"total_energy_kwh"`
	Arrays         []ArrayState `json:"arrays"`
}

type ArrayState struct {
	ID           string  `json:"id"`
	EnergyKWh    float64 `json:"energy_kwh"`
	PeakKW       float64 `json:"peak_kw"`
	POAKWhM2     float64 `json:"poa_kwh_per_m2"`
	MaxCellTempC float64 `json:"max_cell_temp_c"`
}

// BuildState converts a simulation result into the published shape. Failed
// sites are omitted; they have no numbers worth retaining.
func BuildState(result *engine.Result, generatedAt time.Time) State {
	s := State{
		GeneratedAt:    generatedAt,
		Date:           result.Day.Format("2006-01-02"),
		TotalEnergyKWh: result.TotalEnergyKWh,
	}
	for _, site := range result.Sites {
		if site.Err != nil {
			continue
		}
		ss := SiteState{ID: site.SiteID, TotalEnergyKWh: site.Rollup.EnergyKWh}
		for _, arr := range site.Arrays {
			ss.Arrays = append(ss.Arrays, ArrayState{
				ID:           arr.ArrayID,
				EnergyKWh:    arr.Rollup.EnergyKWh,
				PeakKW:       arr.Rollup.PeakKW,
				POAKWhM2:     arr.Rollup.POAKWhM2,
				MaxCellTempC: arr.Rollup.MaxCellTempC,
			})
		}
		sort.Slice(ss.Arrays, func(i, j int) bool { return ss.Arrays[i].ID < ss.Arrays[j].ID })
		s.Sites = append(s.Sites, ss)
	}
	sort.Slice(s.Sites, func(i, j int) bool { return s.Sites[i].ID < s.Sites[j].ID })
	return s
}

// CanonicalHash hashes the state with the generation timestamp stripped, so
// re-running an identical forecast doesn't count as a change.
func CanonicalHash(s State) string {
	s.GeneratedAt = time.Time{}
	raw, err := json.Marshal(s)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// ShouldPublish reports whether the local state should be sent: it must be
// newer than the retained state AND carry a changed payload. A missing
// retained state always publishes.
func ShouldPublish(local State, remote *State) bool {
	if remote == nil {
		return true
	}
	newer := local.GeneratedAt.After(remote.GeneratedAt)
	changed := CanonicalHash(local) != CanonicalHash(*remote)
	return newer && changed
}

// DiscoveryConfig builds the Home Assistant MQTT discovery payload for the
// total-energy sensor, with the full site breakdown attached as attributes.
func DiscoveryConfig(cfg Config) map[string]any {
	cfg = cfg.withDefaults()
	return map[string]any{
		"name":          "Solar Forecast",
		"uniq_id":       cfg.BaseTopic + "_forecast",
		"stat_t":        cfg.StateTopic(),
		"avty_t":        cfg.AvailabilityTopic(),
		"pl_avail":      "online",
		"pl_not_avail":  "offline",
		"val_tpl":       "{{ value_json.total_energy_kwh }}",
		"unit_of_meas":  "kWh",
		"dev_cla":       "energy",
		"stat_cla":      "measurement",
		"json_attr_t":   cfg.StateTopic(),
		"json_attr_tpl": "{{ value_json.sites | tojson }}",
		"dev": map[string]any{
			"name": "Solar Forecast",
			"ids":  []string{cfg.BaseTopic},
			"mdl":  "forecast",
		},
	}
}

// Publisher talks to the broker. One Publish call is a full session:
// connect, check the retained state, publish if warranted, disconnect.
type Publisher struct {
	cfg Config
}

func NewPublisher(cfg Config) *Publisher {
	return &Publisher{cfg: cfg.withDefaults()}
}

// Publish sends the forecast when it is newer and changed, or always when
// force is set. Returns whether anything was published.
func (p *Publisher) Publish(state State, force bool) (bool, error) {
	opts := pahomqtt.NewClientOptions().
		AddBroker(p.cfg.BrokerURL).
		SetClientID(p.cfg.ClientID).
		SetConnectTimeout(p.cfg.ConnectTimeout)
	if p.cfg.Username != "" {
		opts.SetUsername(p.cfg.Username)
		opts.SetPassword(p.cfg.Password)
	}
	client := pahomqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return false, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	defer client.Disconnect(250)

	remote, err := p.retainedState(client)
	if err != nil {
		return false, err
	}
	if !force && !ShouldPublish(state, remote) {
		return false, nil
	}

	if err := p.publishJSON(client, p.cfg.DiscoveryTopic(), DiscoveryConfig(p.cfg)); err != nil {
		return false, err
	}
	if token := client.Publish(p.cfg.AvailabilityTopic(), 1, true, "online"); token.Wait() && token.Error() != nil {
		return false, fmt.Errorf("mqtt publish availability: %w", token.Error())
	}
	if err := p.publishJSON(client, p.cfg.StateTopic(), state); err != nil {
		return false, err
	}
	return true, nil
}

// retainedState subscribes to the state topic and waits briefly for the
// broker to replay the retained message. No message means nothing retained.
func (p *Publisher) retainedState(client pahomqtt.Client) (*State, error) {
	got := make(chan []byte, 1)
	token := client.Subscribe(p.cfg.StateTopic(), 1, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		select {
		case got <- msg.Payload():
		default:
		}
	})
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt subscribe: %w", token.Error())
	}
	defer client.Unsubscribe(p.cfg.StateTopic())

	select {
	case raw := <-got:
		var s State
		if err := json.Unmarshal(raw, &s); err != nil {
			// A corrupt retained blob is treated as absent and overwritten.
			return nil, nil
		}
		return &s, nil
	case <-time.After(p.cfg.RetainedWait):
		return nil, nil
	}
}

func (p *Publisher) publishJSON(client pahomqtt.Client, topic string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding %s payload: %w", topic, err)
	}
	if token := client.Publish(topic, 1, true, raw); token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt publish %s: %w", topic, token.Error())
	}
	return nil
}
