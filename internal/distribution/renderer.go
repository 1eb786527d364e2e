package distribution

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/bissquit/amber-relay/internal/domain"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

// MessageKind selects the template used to render an alert.
type MessageKind string

// Message kinds.
const (
	MessageEmail   MessageKind = "email"
	MessageSMS     MessageKind = "sms"
	MessagePush    MessageKind = "push"
	MessageSocial  MessageKind = "social"
	MessagePress   MessageKind = "press"
	MessagePartner MessageKind = "partner"
)

var messageKinds = []MessageKind{MessageEmail, MessageSMS, MessagePush, MessageSocial, MessagePress, MessagePartner}

// Message is a rendered alert.
type Message struct {
	Subject  string
	Body     string
	Hashtags []string
}

// Renderer renders alerts from templates.
type Renderer struct {
	templates map[MessageKind]*template.Template
}

type templateData struct {
	Alert    *domain.Alert
	Hashtags []string
}

// NewRenderer creates a new renderer and loads all templates.
func NewRenderer() (*Renderer, error) {
	funcMap := template.FuncMap{
		"title":      titleCase,
		"upper":      strings.ToUpper,
		"formatTime": formatTime,
		"alertLabel": alertLabel,
		"article":    article,
		"location":   formatLocation,
		"vehicle":    formatVehicle,
	}

	r := &Renderer{templates: make(map[MessageKind]*template.Template)}

	for _, kind := range messageKinds {
		filename := fmt.Sprintf("templates/%s.tmpl", kind)

		content, err := templatesFS.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("read template %s: %w", filename, err)
		}

		tmpl, err := template.New(string(kind)).Funcs(funcMap).Parse(string(content))
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", kind, err)
		}

		r.templates[kind] = tmpl
	}

	return r, nil
}

// Render renders an alert for the given message kind.
// Provinces feed the social hashtags.
func (r *Renderer) Render(kind MessageKind, alert *domain.Alert, provinces []string) (Message, error) {
	tmpl, ok := r.templates[kind]
	if !ok {
		return Message{}, fmt.Errorf("template not found: %s", kind)
	}

	data := templateData{Alert: alert}
	if kind == MessageSocial {
		data.Hashtags = Hashtags(alert, provinces)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return Message{}, fmt.Errorf("execute template %s: %w", kind, err)
	}

	return Message{
		Subject:  renderSubject(kind, alert),
		Body:     strings.TrimSpace(buf.String()),
		Hashtags: data.Hashtags,
	}, nil
}

func renderSubject(kind MessageKind, alert *domain.Alert) string {
	label := alertLabel(alert)
	switch kind {
	case MessageEmail:
		return fmt.Sprintf("%s: %s", strings.ToUpper(label), alert.Person.Name)
	case MessagePress:
		return fmt.Sprintf("%s %s: %s", label, alert.AlertNumber, alert.Person.Name)
	case MessagePartner:
		return fmt.Sprintf("%s %s", label, alert.AlertNumber)
	case MessagePush:
		return label
	default:
		return ""
	}
}

// Hashtags returns the tags attached to social posts for an alert.
func Hashtags(alert *domain.Alert, provinces []string) []string {
	base := "#MissingPerson"
	if alert.Type == domain.AlertTypeAmber {
		base = "#AmberAlert"
	}

	if len(provinces) == 0 {
		provinces = alert.TargetProvinces
	}

	tags := []string{base}
	seen := map[string]bool{base: true}
	for _, p := range provinces {
		tag := base + strings.ToUpper(strings.ReplaceAll(p, " ", ""))
		if p == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		tags = append(tags, tag)
	}
	return tags
}

// Template functions

var titleCaser = cases.Title(language.English)

func titleCase(s string) string {
	return titleCaser.String(s)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format("Jan 2, 2006 15:04 UTC")
}

func alertLabel(alert *domain.Alert) string {
	if alert.Type == domain.AlertTypeAmber {
		return "Amber Alert"
	}
	return "Missing Person Alert"
}

func article(word string) string {
	if word == "" {
		return "a"
	}
	switch strings.ToLower(word[:1]) {
	case "a", "e", "i", "o", "u":
		return "an"
	}
	return "a"
}

func formatLocation(loc domain.LocationDescriptor) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{loc.Address, titleCase(loc.City), loc.Province} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return "at an unknown location"
	}
	return "in " + strings.Join(parts, ", ")
}

func formatVehicle(v *domain.VehicleDescriptor) string {
	if v == nil {
		return ""
	}

	desc := make([]string, 0, 4)
	if v.Color != "" {
		desc = append(desc, strings.ToLower(v.Color))
	}
	if v.Year > 0 {
		desc = append(desc, fmt.Sprintf("%d", v.Year))
	}
	for _, p := range []string{v.Make, v.Model} {
		if p != "" {
			desc = append(desc, p)
		}
	}

	s := strings.Join(desc, " ")
	if v.LicensePlate != "" {
		plate := strings.ToUpper(v.LicensePlate)
		if v.PlateProvince != "" {
			plate += " (" + v.PlateProvince + ")"
		}
		if s == "" {
			return "plate " + plate
		}
		s += ", plate " + plate
	}
	return s
}
