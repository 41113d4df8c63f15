package main

import "github.com/blocknetprivacy/blocksim/chain"

// Response bodies shared by the API handlers and Client.

type TipInfo struct {
	ID       string `json:"id"`
	Index    int64  `json:"index"`
	Length   int    `json:"length"`
	Active   bool   `json:"active"`
	Longest  bool   `json:"longest"`
	Attacker bool   `json:"attacker"`
}

type TipsResponse struct {
	Tips       []TipInfo `json:"tips"`
	ActiveTip  string    `json:"activeTip"`
	LongestTip string    `json:"longestTip"`
	Selected   string    `json:"selected,omitempty"`
}

type PathResponse struct {
	Tip        string           `json:"tip"`
	Blocks     []*chain.Block   `json:"blocks"`
	Validation chain.PathResult `json:"validation"`
}

type ValidationResponse struct {
	ActiveTip  string           `json:"activeTip"`
	Validation chain.PathResult `json:"validation"`
}

type TamperResponse struct {
	Block      *chain.Block     `json:"block"`
	Validation chain.PathResult `json:"validation"`
}

type ResetResponse struct {
	GenesisID string `json:"genesisId"`
}

type TamperRequest struct {
	Transactions *[]chain.Transaction `json:"transactions,omitempty"`
	TxIndex      *int                 `json:"txIndex,omitempty"`
	Amount       *float64             `json:"amount,omitempty"`
}

type TransactionRequest struct {
	From   string  `json:"from"`
	To     string  `json:"to"`
	Amount float64 `json:"amount"`
}
