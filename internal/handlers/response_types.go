package handlers

import "github.com/xpanvictor/vocall/internal/domains/call"

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type DialResponse struct {
	CallSid string `json:"callSid"`
}

type CampaignResponse struct {
	Placed int `json:"placed"`
}

type CallsResponse struct {
	Calls []call.Call `json:"calls"`
}

type LeadResponse struct {
	Lead call.Lead `json:"lead"`
}

type LeadsResponse struct {
	Leads []call.Lead `json:"leads"`
}

type RecordingsResponse struct {
	Recordings []string `json:"recordings"`
}

type SettingResponse struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}
