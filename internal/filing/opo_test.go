package filing

import (
	"encoding/xml"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dobkap/internal/core"
	"dobkap/internal/tax"
)

func testForm(kind core.IncomeKind) Form {
	return Form{
		Kind:           kind,
		IncomeDate:     time.Date(2023, 1, 12, 0, 0, 0, 0, time.UTC),
		FilingDeadline: time.Date(2023, 2, 13, 0, 0, 0, 0, time.UTC),
		Profile: core.TaxpayerProfile{
			JMBG:          "0101990710000",
			FullName:      "Petar Petrović",
			StreetAddress: "Knez Mihailova 1 <stan 3>",
			OpstinaCode:   "016",
			PhoneNumber:   "0601234567",
			EmailAddress:  "petar@example.com",
		},
		PaymentNotes: "Dividende & kamate",
		Assessment: tax.Assessment{
			GrossIncome:     core.Money{Cents: 1171697},
			TaxPaidAbroad:   core.Money{Cents: 117170},
			GrossTaxPayable: core.Money{Cents: 175755},
			TaxPayable:      core.Money{Cents: 58585},
		},
	}
}

func TestRenderOPO(t *testing.T) {
	out, err := RenderOPO(testForm(core.KindDividend))
	require.NoError(t, err)
	doc := string(out)

	assert.True(t, strings.HasPrefix(doc, `<?xml version="1.0" encoding="UTF-8"?>`))
	assert.Contains(t, doc, `xmlns:ns1="http://pid.purs.gov.rs"`)
	assert.Contains(t, doc, "<ns1:ObracunskiPeriod>2023-01</ns1:ObracunskiPeriod>")
	assert.Contains(t, doc, "<ns1:DatumOstvarivanjaPrihoda>2023-01-12</ns1:DatumOstvarivanjaPrihoda>")
	assert.Contains(t, doc, "<ns1:DatumDospelostiObaveze>2023-02-13</ns1:DatumDospelostiObaveze>")
	assert.Contains(t, doc, "<ns1:ImePrezimeObveznika><![CDATA[Petar Petrović]]></ns1:ImePrezimeObveznika>")
	assert.Contains(t, doc, "<![CDATA[Knez Mihailova 1 <stan 3>]]>")
	assert.Contains(t, doc, "<ns1:Ostalo>Dividende &amp; kamate</ns1:Ostalo>")
	assert.Contains(t, doc, "<ns1:SifraVrstePrihoda>111402000</ns1:SifraVrstePrihoda>")
	assert.Equal(t, 2, strings.Count(doc, "<ns1:BrutoPrihod>11716.97</ns1:BrutoPrihod>"))
	assert.Equal(t, 2, strings.Count(doc, "<ns1:ObracunatiPorez>1757.55</ns1:ObracunatiPorez>"))
	assert.Equal(t, 2, strings.Count(doc, "<ns1:PorezPlacenDrugojDrzavi>1171.70</ns1:PorezPlacenDrugojDrzavi>"))
	assert.Equal(t, 2, strings.Count(doc, "<ns1:PorezZaUplatu>585.85</ns1:PorezZaUplatu>"))
	assert.Contains(t, doc, "<ns1:FondSati>0.00</ns1:FondSati>")

	// the document must be well formed
	dec := xml.NewDecoder(strings.NewReader(doc))
	for {
		_, err := dec.Token()
		if err != nil {
			assert.Equal(t, "EOF", err.Error())
			break
		}
	}
}

func TestRenderOPOInterestCode(t *testing.T) {
	out, err := RenderOPO(testForm(core.KindInterest))
	require.NoError(t, err)
	assert.Contains(t, string(out), "<ns1:SifraVrstePrihoda>111401000</ns1:SifraVrstePrihoda>")
}

func TestCDATATerminatorIsSplit(t *testing.T) {
	assert.Equal(t, "<![CDATA[a]]]]><![CDATA[>b]]>", cdata("a]]>b"))
}
