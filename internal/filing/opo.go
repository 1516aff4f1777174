package filing

import (
	"bytes"
	"encoding/xml"
	"strings"
	"text/template"
	"time"

	"dobkap/internal/core"
	"dobkap/internal/tax"
)

const (
	// Income kind codes of the OPO form.
	CodeInterest = "111401000"
	CodeDividend = "111402000"

	// Namespace of the tax administration's declaration schema.
	Namespace = "http://pid.purs.gov.rs"
)

// Form is everything written onto one OPO declaration.
type Form struct {
	Kind           core.IncomeKind
	IncomeDate     time.Time
	FilingDeadline time.Time
	Profile        core.TaxpayerProfile
	PaymentNotes   string
	Assessment     tax.Assessment
}

func (f Form) Period() string    { return f.IncomeDate.Format("2006-01") }
func (f Form) IncomeDay() string { return core.FormatDate(f.IncomeDate) }
func (f Form) Deadline() string  { return core.FormatDate(f.FilingDeadline) }

func (f Form) KindCode() string {
	if f.Kind == core.KindDividend {
		return CodeDividend
	}
	return CodeInterest
}

var opoTemplate = template.Must(template.New("opo").Funcs(template.FuncMap{
	"x":     escapeXML,
	"cdata": cdata,
}).Parse(`<?xml version="1.0" encoding="UTF-8"?>
<ns1:PodaciPoreskeDeklaracije xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" xmlns:ns1="` + Namespace + `">
  <ns1:PodaciOPrijavi>
    <ns1:VrstaPrijave>1</ns1:VrstaPrijave>
    <ns1:ObracunskiPeriod>{{.Period}}</ns1:ObracunskiPeriod>
    <ns1:DatumOstvarivanjaPrihoda>{{.IncomeDay}}</ns1:DatumOstvarivanjaPrihoda>
    <ns1:Rok>1</ns1:Rok>
    <ns1:DatumDospelostiObaveze>{{.Deadline}}</ns1:DatumDospelostiObaveze>
  </ns1:PodaciOPrijavi>
  <ns1:PodaciOPoreskomObvezniku>
    <ns1:PoreskiIdentifikacioniBroj>{{x .Profile.JMBG}}</ns1:PoreskiIdentifikacioniBroj>
    <ns1:ImePrezimeObveznika>{{cdata .Profile.FullName}}</ns1:ImePrezimeObveznika>
    <ns1:UlicaBrojPoreskogObveznika>{{cdata .Profile.StreetAddress}}</ns1:UlicaBrojPoreskogObveznika>
    <ns1:PrebivalisteOpstina>{{x .Profile.OpstinaCode}}</ns1:PrebivalisteOpstina>
    <ns1:JMBGPodnosiocaPrijave>{{x .Profile.JMBG}}</ns1:JMBGPodnosiocaPrijave>
    <ns1:TelefonKontaktOsobe>{{x .Profile.PhoneNumber}}</ns1:TelefonKontaktOsobe>
    <ns1:ElektronskaPosta>{{x .Profile.EmailAddress}}</ns1:ElektronskaPosta>
  </ns1:PodaciOPoreskomObvezniku>
  <ns1:PodaciONacinuOstvarivanjaPrihoda>
    <ns1:NacinIsplate>3</ns1:NacinIsplate>
    <ns1:Ostalo>{{x .PaymentNotes}}</ns1:Ostalo>
  </ns1:PodaciONacinuOstvarivanjaPrihoda>
  <ns1:DeklarisaniPodaciOVrstamaPrihoda>
    <ns1:PodaciOVrstamaPrihoda>
      <ns1:RedniBroj>1</ns1:RedniBroj>
      <ns1:SifraVrstePrihoda>{{.KindCode}}</ns1:SifraVrstePrihoda>
{{- template "amounts" .Assessment}}
    </ns1:PodaciOVrstamaPrihoda>
  </ns1:DeklarisaniPodaciOVrstamaPrihoda>
  <ns1:Ukupno>
    <ns1:FondSati>0.00</ns1:FondSati>
{{- template "amounts" .Assessment}}
    <ns1:OsnovicaZaDoprinose>0.00</ns1:OsnovicaZaDoprinose>
    <ns1:PIO>0.00</ns1:PIO>
    <ns1:ZDRAVSTVO>0.00</ns1:ZDRAVSTVO>
    <ns1:NEZAPOSLENOST>0.00</ns1:NEZAPOSLENOST>
  </ns1:Ukupno>
  <ns1:Kamata>
    <ns1:PorezZaUplatu>0</ns1:PorezZaUplatu>
    <ns1:OsnovicaZaDoprinose>0</ns1:OsnovicaZaDoprinose>
    <ns1:PIO>0</ns1:PIO>
    <ns1:ZDRAVSTVO>0</ns1:ZDRAVSTVO>
    <ns1:NEZAPOSLENOST>0</ns1:NEZAPOSLENOST>
  </ns1:Kamata>
  <ns1:PodaciODodatnojKamati></ns1:PodaciODodatnojKamati>
</ns1:PodaciPoreskeDeklaracije>
{{define "amounts"}}
    <ns1:BrutoPrihod>{{.GrossIncome}}</ns1:BrutoPrihod>
    <ns1:OsnovicaZaPorez>{{.GrossIncome}}</ns1:OsnovicaZaPorez>
    <ns1:ObracunatiPorez>{{.GrossTaxPayable}}</ns1:ObracunatiPorez>
    <ns1:PorezPlacenDrugojDrzavi>{{.TaxPaidAbroad}}</ns1:PorezPlacenDrugojDrzavi>
    <ns1:PorezZaUplatu>{{.TaxPayable}}</ns1:PorezZaUplatu>
{{- end}}`))

// RenderOPO renders f as an OPO declaration document.
func RenderOPO(f Form) ([]byte, error) {
	var buf bytes.Buffer
	if err := opoTemplate.Execute(&buf, f); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func escapeXML(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

func cdata(s string) string {
	return "<![CDATA[" + strings.ReplaceAll(s, "]]>", "]]]]><![CDATA[>") + "]]>"
}
