package resy

import "encoding/json"

// slot times are venue-local
const slotLayout = "2006-01-02 15:04:05"

type slot struct {
	Date struct {
		Start string `json:"start"`
		End   string `json:"end"`
	} `json:"date"`
	Config struct {
		ID    json.Number `json:"id"`
		Type  string      `json:"type"`
		Token string      `json:"token"`
	} `json:"config"`
	Size struct {
		Min int `json:"min"`
		Max int `json:"max"`
	} `json:"size"`
	Quantity int `json:"quantity"`
	Payment  struct {
		DepositFee float64 `json:"deposit_fee"`
	} `json:"payment"`
}

type findResponse struct {
	Results struct {
		Venues []struct {
			Slots []slot `json:"slots"`
		} `json:"venues"`
	} `json:"results"`
}

type bookingConfig struct {
	Commit    int    `json:"commit"`
	ConfigID  string `json:"config_id"`
	Day       string `json:"day"`
	PartySize int    `json:"party_size"`
}

type detailsResponse struct {
	BookToken struct {
		Value string `json:"value"`
	} `json:"book_token"`
	User struct {
		PaymentMethods []struct {
			ID int64 `json:"id"`
		} `json:"payment_methods"`
	} `json:"user"`
}

type bookResponse struct {
	ResyToken     string `json:"resy_token"`
	ReservationID int64  `json:"reservation_id"`
}

type userResponse struct {
	PaymentMethods []struct {
		ID        int64 `json:"id"`
		IsDefault bool  `json:"is_default"`
	} `json:"payment_methods"`
}

type venueResponse struct {
	ID struct {
		Resy json.Number `json:"resy"`
	} `json:"id"`
	Name     string `json:"name"`
	URLSlug  string `json:"url_slug"`
	Location struct {
		Neighborhood string `json:"neighborhood"`
		TimeZone     string `json:"time_zone"`
	} `json:"location"`
}
