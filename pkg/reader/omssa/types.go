package omssa

import "encoding/xml"

// Types for decoding OMX files. Only the elements the importer reads are
// mapped; everything else in the file is skipped by the decoder.

type omxContent struct {
	XMLName  xml.Name     `xml:"MSSearch"`
	Request  []msRequest  `xml:"MSSearch_request>MSRequest"`
	Response []msResponse `xml:"MSSearch_response>MSResponse"`
}

type msRequest struct {
	Spectra  []msSpectrum      `xml:"MSRequest_spectra>MSSpectrumset>MSSpectrum"`
	Settings *msSearchSettings `xml:"MSRequest_settings>MSSearchSettings"`
}

type msSpectrum struct {
	Number      int       `xml:"MSSpectrum_number"`
	Charge      []int     `xml:"MSSpectrum_charge>MSSpectrum_charge_E"`
	PrecursorMZ float64   `xml:"MSSpectrum_precursormz"`
	MZ          []float64 `xml:"MSSpectrum_mz>MSSpectrum_mz_E"`
	Abundance   []float64 `xml:"MSSpectrum_abundance>MSSpectrum_abundance_E"`
	IScale      float64   `xml:"MSSpectrum_iscale"`
	IDs         []string  `xml:"MSSpectrum_ids>MSSpectrum_ids_E"`
}

type msSearchSettings struct {
	MSMSTolerance float64     `xml:"MSSearchSettings_msmstol"`
	Fixed         []enumValue `xml:"MSSearchSettings_fixed>MSMod"`
	Variable      []enumValue `xml:"MSSearchSettings_variable>MSMod"`
	IonsToSearch  []enumValue `xml:"MSSearchSettings_ionstosearch>MSIonType"`
}

type msResponse struct {
	Scale   *float64   `xml:"MSResponse_scale"`
	HitSets []msHitSet `xml:"MSResponse_hitsets>MSHitSet"`
}

type msHitSet struct {
	Number int      `xml:"MSHitSet_number"`
	Hits   []msHits `xml:"MSHitSet_hits>MSHits"`
	IDs    []string `xml:"MSHitSet_ids>MSHitSet_ids_E"`
}

type msHits struct {
	EValue    float64    `xml:"MSHits_evalue"`
	PValue    float64    `xml:"MSHits_pvalue"`
	Charge    int        `xml:"MSHits_charge"`
	PepString string     `xml:"MSHits_pepstring"`
	Mods      []msModHit `xml:"MSHits_mods>MSModHit"`
	MZHits    []msMZHit  `xml:"MSHits_mzhits>MSMZHit"`
}

type msModHit struct {
	Site    int       `xml:"MSModHit_site"`
	ModType enumValue `xml:"MSModHit_modtype>MSMod"`
}

type msMZHit struct {
	Ion      enumValue  `xml:"MSMZHit_ion>MSIonType"`
	Charge   int        `xml:"MSMZHit_charge"`
	Number   int        `xml:"MSMZHit_number"`
	MZ       float64    `xml:"MSMZHit_mz"`
	Loss     *enumValue `xml:"MSMZHit_moreion>MSIon>MSIon_neutralloss>MSIonNeutralLoss"`
	Immonium string     `xml:"MSMZHit_moreion>MSIon>MSIon_immonium>MSImmonium>MSImmonium_parent"`
}

// enumValue is an ASN.1 enumeration as written to XML:
// <MSMod value="oxm">1</MSMod>
type enumValue struct {
	Code string `xml:",chardata"`
	Name string `xml:"value,attr"`
}

type modSpecSet struct {
	XMLName xml.Name    `xml:"MSModSpecSet"`
	Specs   []msModSpec `xml:"MSModSpec"`
}

type msModSpec struct {
	Mod      enumValue `xml:"MSModSpec_mod>MSMod"`
	Type     enumValue `xml:"MSModSpec_type>MSModType"`
	Name     string    `xml:"MSModSpec_name"`
	MonoMass float64   `xml:"MSModSpec_monomass"`
	Residues []string  `xml:"MSModSpec_residues>MSModSpec_residues_E"`
}
