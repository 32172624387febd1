package view

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/afroash/hydro-monitor/internal/classify"
	"github.com/afroash/hydro-monitor/internal/config"
	"github.com/afroash/hydro-monitor/internal/models"
	"github.com/afroash/hydro-monitor/internal/scheduler"
)

// TableRenderer prints each snapshot as a set of aligned tables.
// It implements scheduler.Sink.
type TableRenderer struct {
	out   io.Writer
	loc   *time.Location
	limit int
	mu    sync.Mutex
}

// NewTableRenderer writes to out, showing at most limit rows per table
// (0 means all) with timestamps in loc.
func NewTableRenderer(out io.Writer, loc *time.Location, limit int) *TableRenderer {
	if loc == nil {
		loc = time.Local
	}
	return &TableRenderer{out: out, loc: loc, limit: limit}
}

// Render prints the snapshot header, step outcomes and every subscribed
// collection.
func (r *TableRenderer) Render(snap *scheduler.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fmt.Fprintf(r.out, "== Ciclo %s (%s) %s ==\n",
		shortID(snap.CycleID), snap.Reason, snap.FinishedAt.In(r.loc).Format(DisplayLayout))

	if snap.TickErr != nil {
		fmt.Fprintf(r.out, "tick: erro: %v\n", snap.TickErr)
	} else if snap.Tick != nil {
		fmt.Fprintf(r.out, "tick: %d leituras, %d comandos, %d pendentes\n",
			len(snap.Tick.Leituras), len(snap.Tick.Comandos), snap.Tick.Pendentes)
	}
	if snap.FlushErr != nil {
		fmt.Fprintf(r.out, "sync: erro: %v\n", snap.FlushErr)
	} else if snap.Sync != nil {
		fmt.Fprintf(r.out, "sync: %d sincronizadas, %d pendentes\n", snap.Sync.Sincronizadas, snap.Sync.Pendentes)
	}

	if snap.Sensors != nil {
		r.section(config.ViewSensors, snap, func() { r.sensors(snap.Sensors) })
	}
	if snap.Actuators != nil {
		r.section(config.ViewActuators, snap, func() { r.actuators(snap.Actuators) })
	}
	if snap.Commands != nil {
		r.section(config.ViewCommands, snap, func() { r.commands(snap.Commands) })
	}
	if snap.Readings != nil {
		r.section(config.ViewReadings, snap, func() { r.readings(snap.Readings) })
	}
	if snap.Alerts != nil {
		r.section(config.ViewAlerts, snap, func() { r.alerts(snap.Alerts) })
	}
	fmt.Fprintln(r.out)
}

// Sensors prints a sensor table
func (r *TableRenderer) Sensors(sensors []models.Sensor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sensors(sensors)
}

// Actuators prints an actuator table
func (r *TableRenderer) Actuators(actuators []models.Actuator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actuators(actuators)
}

// Commands prints a command history table
func (r *TableRenderer) Commands(commands []models.Command) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands(commands)
}

// Readings prints a labeled reading table
func (r *TableRenderer) Readings(readings []classify.LabeledReading) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.readings(readings)
}

// Alerts prints a labeled alert table
func (r *TableRenderer) Alerts(alerts []classify.LabeledAlert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts(alerts)
}

func (r *TableRenderer) section(name string, snap *scheduler.Snapshot, body func()) {
	fmt.Fprintf(r.out, "\n[%s]\n", name)
	if err := snap.Err(name); err != nil {
		fmt.Fprintf(r.out, "erro: %v\n", err)
		return
	}
	body()
}

func (r *TableRenderer) table(header []string, rows [][]string) {
	if len(rows) == 0 {
		fmt.Fprintln(r.out, "(vazio)")
		return
	}
	more := 0
	if r.limit > 0 && len(rows) > r.limit {
		more = len(rows) - r.limit
		rows = rows[:r.limit]
	}

	tw := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	tw.Flush()
	if more > 0 {
		fmt.Fprintf(r.out, "... mais %d\n", more)
	}
}

func (r *TableRenderer) sensors(sensors []models.Sensor) {
	rows := make([][]string, len(sensors))
	for i, s := range sensors {
		rows[i] = []string{s.ID, s.Tipo, classify.ClassifyUnit(s.Unidade), orMissing(s.Modelo), orMissing(s.Localizacao)}
	}
	r.table([]string{"ID", "TIPO", "UNIDADE", "MODELO", "LOCALIZAÇÃO"}, rows)
}

func (r *TableRenderer) actuators(actuators []models.Actuator) {
	rows := make([][]string, len(actuators))
	for i, a := range actuators {
		last, at := Missing, Missing
		if a.UltimoComando != nil {
			last = a.UltimoComando.Acao
			at = FormatTimestamp(a.UltimoComando.DataHora, r.loc)
		} else if len(a.Comandos) > 0 {
			// Comandos arrive newest first after ordering.
			last = a.Comandos[0].Acao
			at = FormatTimestamp(a.Comandos[0].DataHora, r.loc)
		}
		rows[i] = []string{a.ID, a.Tipo, fmt.Sprint(len(a.Comandos)), last, at}
	}
	r.table([]string{"ID", "TIPO", "COMANDOS", "ÚLTIMO", "DATA/HORA"}, rows)
}

func (r *TableRenderer) commands(commands []models.Command) {
	rows := make([][]string, len(commands))
	for i, c := range commands {
		rows[i] = []string{c.AtuadorID, orMissing(c.Tipo), c.Acao, FormatTimestamp(c.DataHora, r.loc)}
	}
	r.table([]string{"ATUADOR", "TIPO", "AÇÃO", "DATA/HORA"}, rows)
}

func (r *TableRenderer) readings(readings []classify.LabeledReading) {
	rows := make([][]string, len(readings))
	for i, rd := range readings {
		rows[i] = []string{
			rd.SensorID,
			orMissing(rd.Tipo),
			FormatValue(rd.Valor),
			rd.UnitLabel,
			rd.StatusLabel,
			FormatTimestamp(rd.DataHora, r.loc),
		}
	}
	r.table([]string{"SENSOR", "TIPO", "VALOR", "UNIDADE", "STATUS", "DATA/HORA"}, rows)
}

func (r *TableRenderer) alerts(alerts []classify.LabeledAlert) {
	rows := make([][]string, len(alerts))
	for i, a := range alerts {
		rows[i] = []string{
			a.SensorID,
			orMissing(a.Tipo),
			FormatValue(a.Valor),
			a.StatusLabel,
			orMissing(a.Mensagem),
			FormatTimestamp(a.DataHora, r.loc),
		}
	}
	r.table([]string{"SENSOR", "TIPO", "VALOR", "STATUS", "MENSAGEM", "DATA/HORA"}, rows)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
