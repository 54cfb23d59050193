package contract

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"os"
	"strings"

	"github.com/shopspring/decimal"
)

//go:embed templates/contract.html
var templateFS embed.FS

const templateName = "contract.html"

// Renderer turns aggregated contract data into HTML. It performs no I/O after construction.
type Renderer struct {
	tmpl *template.Template
}

// NewRenderer parses the template at path, or the built-in one when path is empty.
func NewRenderer(path string) (*Renderer, error) {
	var (
		src []byte
		err error
	)
	if path == "" {
		src, err = templateFS.ReadFile("templates/" + templateName)
	} else {
		src, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read contract template: %w", err)
	}

	tmpl, err := template.New(templateName).Funcs(template.FuncMap{
		"image": safeImage,
	}).Parse(string(src))
	if err != nil {
		return nil, fmt.Errorf("parse contract template: %w", err)
	}
	return &Renderer{tmpl: tmpl}, nil
}

type view struct {
	*Data
	L Labels
}

func (v view) Money(d decimal.Decimal) string {
	return formatMoney(d, v.Language)
}

func (v view) Percent(d decimal.Decimal) string {
	s := d.Mul(decimal.NewFromInt(100)).String()
	if v.Language == "es" {
		s = strings.Replace(s, ".", ",", 1)
	}
	return s + "%"
}

func (v view) InspectionType(t string) string {
	if name, ok := v.L.InspectionTypes[t]; ok {
		return name
	}
	return t
}

func (r *Renderer) Render(d *Data) (string, error) {
	if d == nil {
		return "", fmt.Errorf("render contract: no data")
	}
	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, view{Data: d, L: LabelsFor(d.Language)}); err != nil {
		return "", fmt.Errorf("render contract %s: %w", d.ContractNumber, err)
	}
	return buf.String(), nil
}

func formatMoney(d decimal.Decimal, lang string) string {
	s := d.StringFixed(2)
	if lang == "es" {
		s = strings.Replace(s, ".", ",", 1)
	}
	return s + " €"
}

// safeImage lets inline data URIs through the template's URL sanitizer. Anything else
// is returned as a plain string and escaped as usual.
func safeImage(src string) any {
	if strings.HasPrefix(src, "data:image/") {
		return template.URL(src)
	}
	return src
}
