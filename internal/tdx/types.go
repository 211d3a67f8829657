// Package tdx contains the TDX (Transport Data eXchange) client used to
// resolve THSR stations and look up fares.
package tdx

// LocalizedName is a TDX multi-language name field.
type LocalizedName struct {
	ZhTw string `json:"Zh_tw"`
	En   string `json:"En,omitempty"`
}

// Station is a THSR station record.
type Station struct {
	StationID   string        `json:"StationID"`
	StationName LocalizedName `json:"StationName"`
}

// DisplayName returns the Traditional Chinese name, falling back to English
// and then the station id.
func (s Station) DisplayName() string {
	switch {
	case s.StationName.ZhTw != "":
		return s.StationName.ZhTw
	case s.StationName.En != "":
		return s.StationName.En
	default:
		return s.StationID
	}
}

// CabinClass is the THSR cabin code. The same code is shown to users and
// used as a fare-table filter.
type CabinClass int

const (
	CabinStandard    CabinClass = 1
	CabinBusiness    CabinClass = 2
	CabinNonReserved CabinClass = 3
)

// Label returns the user-facing cabin name.
func (c CabinClass) Label() string {
	switch c {
	case CabinStandard:
		return "標準座車廂"
	case CabinBusiness:
		return "商務座車廂"
	case CabinNonReserved:
		return "自由座車廂"
	default:
		return "未知車廂"
	}
}

// Valid reports whether c is a known cabin code.
func (c CabinClass) Valid() bool {
	return c >= CabinStandard && c <= CabinNonReserved
}

const (
	// FareClassAdult is the TDX fare class for an adult ticket.
	FareClassAdult = 1
	// TicketTypeOneWay is the TDX ticket type for a one-way ticket.
	TicketTypeOneWay = 1
)

// FareQuery identifies one fare-table cell.
type FareQuery struct {
	OriginStationID      string
	DestinationStationID string
	CabinClass           CabinClass
	FareClass            int
	TicketType           int
}

// NewFareQuery builds an adult one-way query.
func NewFareQuery(originID, destinationID string, cabin CabinClass) FareQuery {
	return FareQuery{
		OriginStationID:      originID,
		DestinationStationID: destinationID,
		CabinClass:           cabin,
		FareClass:            FareClassAdult,
		TicketType:           TicketTypeOneWay,
	}
}

// Fare is a single row of an OD fare table.
type Fare struct {
	TicketType int `json:"TicketType"`
	FareClass  int `json:"FareClass"`
	CabinClass int `json:"CabinClass"`
	Price      int `json:"Price"`
}

func (f Fare) matches(q FareQuery) bool {
	return f.CabinClass == int(q.CabinClass) &&
		f.FareClass == q.FareClass &&
		f.TicketType == q.TicketType
}

// ODFare is the origin/destination fare table returned by TDX.
type ODFare struct {
	OriginStationName      LocalizedName `json:"OriginStationName"`
	DestinationStationName LocalizedName `json:"DestinationStationName"`
	Fares                  []Fare        `json:"Fares"`
}
