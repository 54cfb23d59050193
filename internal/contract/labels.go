package contract

import "strings"

// Labels are the fixed strings printed around contract data.
type Labels struct {
	Title           string
	Number          string
	Date            string
	Lessor          string
	Lessee          string
	TaxID           string
	Document        string
	License         string
	Address         string
	Phone           string
	Email           string
	Nationality     string
	BirthDate       string
	Rental          string
	Pickup          string
	Return          string
	Location        string
	Days            string
	Vehicles        string
	Vehicle         string
	Registration    string
	Color           string
	Fuel            string
	PricePerDay     string
	Total           string
	Drivers         string
	Driver          string
	Fee             string
	Extras          string
	Upgrades        string
	Concept         string
	UnitPrice       string
	Quantity        string
	PerDay          string
	Subtotal        string
	Tax             string
	Inspections     string
	InspectionTypes map[string]string
	Odometer        string
	FuelLevel       string
	Photos          string
	Notes           string
	InspectionLink  string
	Terms           []string
	Signature       string
	SignedAt        string
	IPAddress       string
	UserAgent       string
	Unsigned        string
}

var labels = map[string]Labels{
	"es": {
		Title:           "Contrato de alquiler de vehículo",
		Number:          "Nº de contrato",
		Date:            "Fecha",
		Lessor:          "Arrendador",
		Lessee:          "Arrendatario",
		TaxID:           "CIF/NIF",
		Document:        "Documento",
		License:         "Permiso de conducir",
		Address:         "Dirección",
		Phone:           "Teléfono",
		Email:           "Correo electrónico",
		Nationality:     "Nacionalidad",
		BirthDate:       "Fecha de nacimiento",
		Rental:          "Datos del alquiler",
		Pickup:          "Recogida",
		Return:          "Devolución",
		Location:        "Lugar",
		Days:            "Días",
		Vehicles:        "Vehículos",
		Vehicle:         "Vehículo",
		Registration:    "Matrícula",
		Color:           "Color",
		Fuel:            "Combustible",
		PricePerDay:     "Precio/día",
		Total:           "Total",
		Drivers:         "Conductores adicionales",
		Driver:          "Conductor",
		Fee:             "Cargo",
		Extras:          "Extras",
		Upgrades:        "Mejoras",
		Concept:         "Concepto",
		UnitPrice:       "Precio unidad",
		Quantity:        "Cantidad",
		PerDay:          "por día",
		Subtotal:        "Base imponible",
		Tax:             "IVA",
		Inspections:     "Inspecciones",
		InspectionTypes: map[string]string{"delivery": "Entrega", "return": "Devolución"},
		Odometer:        "Kilometraje",
		FuelLevel:       "Nivel de combustible",
		Photos:          "Fotos",
		Notes:           "Observaciones",
		InspectionLink:  "Fotos de inspección",
		Terms: []string{
			"El arrendatario recibe el vehículo en el estado descrito y se compromete a devolverlo en las mismas condiciones.",
			"Los cargos de conductores adicionales se abonan aparte y no están incluidos en el total.",
			"El vehículo se devolverá con el mismo nivel de combustible con el que se entregó.",
		},
		Signature: "Firma del arrendatario",
		SignedAt:  "Firmado el",
		IPAddress: "Dirección IP",
		UserAgent: "Navegador",
		Unsigned:  "Pendiente de firma",
	},
	"en": {
		Title:           "Vehicle rental agreement",
		Number:          "Contract no.",
		Date:            "Date",
		Lessor:          "Lessor",
		Lessee:          "Lessee",
		TaxID:           "Tax ID",
		Document:        "Document",
		License:         "Driving licence",
		Address:         "Address",
		Phone:           "Phone",
		Email:           "Email",
		Nationality:     "Nationality",
		BirthDate:       "Date of birth",
		Rental:          "Rental details",
		Pickup:          "Pick-up",
		Return:          "Return",
		Location:        "Location",
		Days:            "Days",
		Vehicles:        "Vehicles",
		Vehicle:         "Vehicle",
		Registration:    "Registration",
		Color:           "Colour",
		Fuel:            "Fuel",
		PricePerDay:     "Price/day",
		Total:           "Total",
		Drivers:         "Additional drivers",
		Driver:          "Driver",
		Fee:             "Fee",
		Extras:          "Extras",
		Upgrades:        "Upgrades",
		Concept:         "Item",
		UnitPrice:       "Unit price",
		Quantity:        "Qty",
		PerDay:          "per day",
		Subtotal:        "Net amount",
		Tax:             "VAT",
		Inspections:     "Inspections",
		InspectionTypes: map[string]string{"delivery": "Delivery", "return": "Return"},
		Odometer:        "Odometer",
		FuelLevel:       "Fuel level",
		Photos:          "Photos",
		Notes:           "Notes",
		InspectionLink:  "Inspection photos",
		Terms: []string{
			"The lessee receives the vehicle in the condition described and agrees to return it in the same condition.",
			"Additional driver fees are charged separately and are not included in the total.",
			"The vehicle must be returned with the same fuel level as at delivery.",
		},
		Signature: "Lessee signature",
		SignedAt:  "Signed on",
		IPAddress: "IP address",
		UserAgent: "Browser",
		Unsigned:  "Awaiting signature",
	},
}

func SupportedLanguage(lang string) bool {
	_, ok := labels[lang]
	return ok
}

// LabelsFor returns the labels for lang, or the Spanish set when lang is unknown.
func LabelsFor(lang string) Labels {
	if l, ok := labels[strings.ToLower(lang)]; ok {
		return l
	}
	return labels[DefaultLanguage]
}
