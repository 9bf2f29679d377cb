package domain

import (
	"fmt"
	"time"
)

// Key identifies one step of one graph on one network.
type Key struct {
	Network string `json:"network"`
	Graph   string `json:"graph"`
	StepID  string `json:"stepId"`
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Network, k.Graph, k.StepID)
}

// Record is the durable proof that a step was deployed and confirmed.
// Records are append-only: once written they are never changed.
type Record struct {
	Network         string    `json:"network"`
	Graph           string    `json:"graph"`
	StepID          string    `json:"stepId"`
	Address         string    `json:"address"`
	TxHash          string    `json:"txHash"`
	BlockNumber     uint64    `json:"blockNumber"`
	ChainID         int64     `json:"chainId"`
	ConstructorArgs string    `json:"constructorArgs,omitempty"`
	RunID           string    `json:"runId"`
	DeployedAt      time.Time `json:"deployedAt"`
}

func (r Record) Key() Key {
	return Key{Network: r.Network, Graph: r.Graph, StepID: r.StepID}
}

// Submission is a transaction that was sent but whose confirmation has not been observed yet.
type Submission struct {
	TxHash          string    `json:"txHash"`
	Address         string    `json:"address"`
	ConstructorArgs string    `json:"constructorArgs,omitempty"`
	SubmittedAt     time.Time `json:"submittedAt"`
}

// Confirmation is what the network reports once a submission is mined successfully.
type Confirmation struct {
	Address     string
	TxHash      string
	BlockNumber uint64
}
