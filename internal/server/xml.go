package server

import (
	"encoding/xml"
	"net/http"
	"strconv"

	"github.com/afroash/hydro-monitor/internal/models"
)

// xmlSystem is the exported document. Readings reference their sensor by
// id and carry their own unit.
type xmlSystem struct {
	XMLName   xml.Name     `xml:"sistemaHidroponico"`
	ID        string       `xml:"id,attr"`
	Meta      xmlMeta      `xml:"meta"`
	Sensores  []xmlSensor  `xml:"sensores>sensor"`
	Leituras  []xmlReading `xml:"leituras>leitura"`
	Atuadores []xmlActor   `xml:"atuadores>atuador"`
}

type xmlMeta struct {
	GeradoEm string `xml:"geradoEm"`
	Inicio   string `xml:"inicio,omitempty"`
	Fim      string `xml:"fim,omitempty"`
}

type xmlSensor struct {
	ID          string `xml:"id,attr"`
	Tipo        string `xml:"tipo"`
	Unidade     string `xml:"unidade"`
	Modelo      string `xml:"modelo"`
	Localizacao string `xml:"localizacao"`
}

type xmlReading struct {
	SensorRef string `xml:"sensorRef,attr"`
	Unidade   string `xml:"unidade,attr,omitempty"`
	DataHora  string `xml:"dataHora"`
	Valor     string `xml:"valor"`
}

type xmlActor struct {
	ID            string       `xml:"id,attr"`
	Tipo          string       `xml:"tipo"`
	Comandos      []xmlCommand `xml:"comandos>comando"`
	UltimoComando *xmlLastCmd  `xml:"ultimoComando,omitempty"`
}

type xmlCommand struct {
	DataHora string `xml:"dataHora"`
	Acao     string `xml:"acao"`
}

type xmlLastCmd struct {
	DataHora string `xml:"dataHora"`
	Comando  string `xml:"comando"`
}

// HandleExportXML returns the system with readings filtered to the
// inclusive inicio/fim range, as an XML attachment.
func (api *APIHandler) HandleExportXML(w http.ResponseWriter, r *http.Request) {
	start, end, err := rangeParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sensors, err := api.store.ListSensors()
	if err != nil {
		api.internalError(w, "list sensors", err)
		return
	}
	actuators, err := api.store.ListActuators()
	if err != nil {
		api.internalError(w, "list actuators", err)
		return
	}
	readings, err := api.store.ListReadings(start, end)
	if err != nil {
		api.internalError(w, "list readings", err)
		return
	}

	doc := xmlSystem{ID: api.systemID}
	doc.Meta.GeradoEm = models.FormatTimestamp(api.now())
	if !start.IsZero() {
		doc.Meta.Inicio = models.FormatTimestamp(start)
	}
	if !end.IsZero() {
		doc.Meta.Fim = models.FormatTimestamp(end)
	}
	for _, s := range sensors {
		doc.Sensores = append(doc.Sensores, xmlSensor{
			ID:          s.ID,
			Tipo:        s.Tipo,
			Unidade:     s.Unidade,
			Modelo:      s.Modelo,
			Localizacao: s.Localizacao,
		})
	}
	for _, rd := range readings {
		doc.Leituras = append(doc.Leituras, xmlReading{
			SensorRef: rd.SensorID,
			Unidade:   rd.Unidade,
			DataHora:  rd.DataHora,
			Valor:     strconv.FormatFloat(rd.Valor, 'f', -1, 64),
		})
	}
	for _, a := range actuators {
		actor := xmlActor{ID: a.ID, Tipo: a.Tipo}
		for _, c := range a.Comandos {
			actor.Comandos = append(actor.Comandos, xmlCommand{DataHora: c.DataHora, Acao: c.Acao})
		}
		if a.UltimoComando != nil {
			actor.UltimoComando = &xmlLastCmd{DataHora: a.UltimoComando.DataHora, Comando: a.UltimoComando.Acao}
		}
		doc.Atuadores = append(doc.Atuadores, actor)
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		api.internalError(w, "marshal xml", err)
		return
	}

	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="leituras.xml"`)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(xml.Header))
	w.Write(out)
	w.Write([]byte("\n"))
}
