package chains

import (
	"fmt"

	"github.com/kosarica/catalog-service/internal/adapters/base"
	"github.com/kosarica/catalog-service/internal/adapters/config"
	"github.com/kosarica/catalog-service/internal/parsers/xlsx"
	"github.com/kosarica/catalog-service/internal/parsers/xml"
	"github.com/kosarica/catalog-service/internal/types"
)

// croatianStandardColumnMapping is the column layout mandated by Croatian
// price-transparency regulation for CSV price lists: every chain publishes
// the same field names, so one mapping covers Konzum (see konzum.go) and the
// other CSV-feed chains below. Chains that deviate get their own mapping
// file the way konzum.go does for its English-header fallback.
var croatianStandardColumnMapping = konzumColumnMapping

// newGenericCSVAdapter builds a CSV adapter straight from a chain's
// config.ChainConfigs entry, for chains whose portal needs no bespoke
// discovery or filename parsing beyond what BaseCsvAdapter already provides.
func newGenericCSVAdapter(chainID config.ChainID) (*base.BaseCsvAdapter, error) {
	cfg, ok := config.GetChainConfig(chainID)
	if !ok {
		return nil, fmt.Errorf("no chain config for %s", chainID)
	}
	return base.NewBaseCsvAdapter(base.CsvAdapterConfig{
		BaseAdapterConfig: base.BaseAdapterConfig{
			Slug:           string(chainID),
			Name:           cfg.Name,
			SupportedTypes: cfg.SupportedTypes,
			ChainConfig:    cfg,
		},
		ColumnMapping: croatianStandardColumnMapping,
	})
}

// NewLidlAdapter creates the Lidl chain adapter.
func NewLidlAdapter() (*base.BaseCsvAdapter, error) { return newGenericCSVAdapter(config.ChainLidl) }

// NewPlodineAdapter creates the Plodine chain adapter.
func NewPlodineAdapter() (*base.BaseCsvAdapter, error) {
	return newGenericCSVAdapter(config.ChainPlodine)
}

// NewIntersparAdapter creates the Interspar chain adapter.
func NewIntersparAdapter() (*base.BaseCsvAdapter, error) {
	return newGenericCSVAdapter(config.ChainInterspar)
}

// NewKauflandAdapter creates the Kaufland chain adapter.
func NewKauflandAdapter() (*base.BaseCsvAdapter, error) {
	return newGenericCSVAdapter(config.ChainKaufland)
}

// NewEurospinAdapter creates the Eurospin chain adapter.
func NewEurospinAdapter() (*base.BaseCsvAdapter, error) {
	return newGenericCSVAdapter(config.ChainEurospin)
}

// NewKtcAdapter creates the KTC chain adapter.
func NewKtcAdapter() (*base.BaseCsvAdapter, error) { return newGenericCSVAdapter(config.ChainKtc) }

// NewMetroAdapter creates the Metro chain adapter.
func NewMetroAdapter() (*base.BaseCsvAdapter, error) {
	return newGenericCSVAdapter(config.ChainMetro)
}

// NewTrgocentarAdapter creates the Trgocentar chain adapter.
func NewTrgocentarAdapter() (*base.BaseCsvAdapter, error) {
	return newGenericCSVAdapter(config.ChainTrgocentar)
}

// studenacFieldMapping maps Studenac's published XML price-list schema,
// which uses the same Croatian field names as the CSV chains but as XML
// element names instead of CSV headers.
var studenacFieldMapping = xml.XmlFieldMapping{
	ExternalID:     types.StringPtr("SifraProizvoda"),
	Name:           "NazivProizvoda",
	Category:       types.StringPtr("KategorijaProizvoda"),
	Brand:          types.StringPtr("MarkaProizvoda"),
	Unit:           types.StringPtr("JedinicaMjere"),
	UnitQuantity:   types.StringPtr("NetoKolicina"),
	Price:          "MaloprodajnaCijena",
	DiscountPrice:  types.StringPtr("MPCPosebniOblikProdaje"),
	Barcodes:       types.StringPtr("Barkod"),
	UnitPrice:      types.StringPtr("CijenaZaJedinicuMjere"),
	LowestPrice30d: types.StringPtr("NajnizaCijena30Dana"),
	AnchorPrice:    types.StringPtr("SidrenaCijena"),
}

// NewStudenacAdapter creates the Studenac chain adapter. Studenac publishes
// one national XML feed keyed by a portal-assigned store ID rather than a
// filename-encoded store code (config.ChainStudenac.StoreResolution ==
// "portal_id"), so store identity comes from the feed content, not the
// filename, by the time it reaches internal/ingest.
func NewStudenacAdapter() (*base.BaseXmlAdapter, error) {
	cfg, ok := config.GetChainConfig(config.ChainStudenac)
	if !ok {
		return nil, fmt.Errorf("no chain config for %s", config.ChainStudenac)
	}
	return base.NewBaseXmlAdapter(base.XmlAdapterConfig{
		BaseAdapterConfig: base.BaseAdapterConfig{
			Slug:           string(config.ChainStudenac),
			Name:           cfg.Name,
			SupportedTypes: cfg.SupportedTypes,
			ChainConfig:    cfg,
		},
		FieldMapping: studenacFieldMapping,
	})
}

// dmColumnMapping maps DM's single national XLSX price list. DM publishes
// one spreadsheet for the whole chain (StoreResolution == "national"), so
// every row shares the same store identifier rather than one per file.
var dmColumnMapping = xlsx.XlsxColumnMapping{
	ExternalID:   xlsxHeader("Sifra"),
	Name:         xlsx.NewHeaderIndex("Naziv"),
	Category:     xlsxHeader("Kategorija"),
	Brand:        xlsxHeader("Marka"),
	Unit:         xlsxHeader("Jedinica mjere"),
	UnitQuantity: xlsxHeader("Neto kolicina"),
	Price:        xlsx.NewHeaderIndex("Maloprodajna cijena"),
	Barcodes:     xlsxHeader("Barkod"),
	UnitPrice:    xlsxHeader("Cijena za jedinicu mjere"),
}

func xlsxHeader(name string) *xlsx.XlsxColumnIndex {
	idx := xlsx.NewHeaderIndex(name)
	return &idx
}

// NewDmAdapter creates the DM chain adapter.
func NewDmAdapter() (*base.BaseXlsxAdapter, error) {
	cfg, ok := config.GetChainConfig(config.ChainDm)
	if !ok {
		return nil, fmt.Errorf("no chain config for %s", config.ChainDm)
	}
	return base.NewBaseXlsxAdapter(base.XlsxAdapterConfig{
		BaseAdapterConfig: base.BaseAdapterConfig{
			Slug:           string(config.ChainDm),
			Name:           cfg.Name,
			SupportedTypes: cfg.SupportedTypes,
			ChainConfig:    cfg,
		},
		ColumnMapping:          dmColumnMapping,
		HasHeader:              true,
		DefaultStoreIdentifier: "national",
	})
}
