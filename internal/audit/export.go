package audit

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strconv"
	"time"
)

// DisplayLayout is the timestamp format used in exports.
const DisplayLayout = "2006-01-02 15:04:05"

var csvHeader = []string{"ID", "Data/Hora", "Usuário", "Perfil", "Operação", "Modelo", "Descrição", "Modificações"}

// Exporter renders entries as CSV or JSON in a fixed display timezone.
type Exporter struct {
	loc *time.Location
}

// NewExporter returns an exporter for loc; nil means UTC.
func NewExporter(loc *time.Location) *Exporter {
	if loc == nil {
		loc = time.UTC
	}
	return &Exporter{loc: loc}
}

// Location exposes the display timezone.
func (e *Exporter) Location() *time.Location {
	return e.loc
}

// FormatTime renders t in the display timezone.
func (e *Exporter) FormatTime(t time.Time) string {
	return t.In(e.loc).Format(DisplayLayout)
}

// WriteCSV serialises entries with the fixed export columns.
func (e *Exporter) WriteCSV(entries []Entry) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}
	for _, entry := range entries {
		record := []string{
			strconv.FormatInt(entry.ID, 10),
			e.FormatTime(entry.At),
			entry.ActorName,
			entry.ActorRole,
			entry.Operation,
			entry.Entity,
			entry.Description,
			entry.ChangesValue(),
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type jsonEntry struct {
	ID            int64   `json:"id"`
	Horario       string  `json:"horario"`
	UsuarioID     *int64  `json:"usuario_id"`
	UsuarioNome   string  `json:"usuario_nome"`
	UsuarioPerfil string  `json:"usuario_perfil"`
	TipoOperacao  string  `json:"tipo_operacao"`
	TipoModelo    string  `json:"tipo_modelo"`
	Descricao     string  `json:"descricao"`
	Modificacoes  *string `json:"modificacoes"`
}

// WriteJSON serialises entries as a JSON array.
func (e *Exporter) WriteJSON(entries []Entry) ([]byte, error) {
	out := make([]jsonEntry, 0, len(entries))
	for _, entry := range entries {
		out = append(out, jsonEntry{
			ID:            entry.ID,
			Horario:       e.FormatTime(entry.At),
			UsuarioID:     entry.ActorID,
			UsuarioNome:   entry.ActorName,
			UsuarioPerfil: entry.ActorRole,
			TipoOperacao:  entry.Operation,
			TipoModelo:    entry.Entity,
			Descricao:     entry.Description,
			Modificacoes:  entry.Changes,
		})
	}
	return json.MarshalIndent(out, "", "  ")
}
