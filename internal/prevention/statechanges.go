package prevention

import (
	"fmt"
	"strconv"

	"github.com/mbd888/walletguard/internal/simulator"
	"github.com/mbd888/walletguard/internal/threat"
)

const sourceSimulator = "simulator"

// DefaultLargeTransferThreshold is the simulated balance change, in token
// units, above which a transfer is flagged.
const DefaultLargeTransferThreshold = 1000.0

// flagStateChanges turns the simulator's observed effects into detections.
// Each flagged change contributes the same flat score; severity carries
// the nuance.
func flagStateChanges(sim *simulator.Result, largeTransfer float64) []threat.Detection {
	if sim == nil {
		return nil
	}

	var detections []threat.Detection
	for _, change := range sim.BalanceChanges {
		switch change.Type {
		case simulator.ChangeApproval:
			if change.Value == simulator.UnlimitedApproval {
				detections = append(detections, threat.Detection{
					Type:        "unlimited_approval",
					Severity:    threat.SeverityCritical,
					Description: fmt.Sprintf("Grants unlimited spending approval on %s", tokenOrContract(change)),
					Confidence:  0.95,
					Source:      sourceSimulator,
				})
			}
		case simulator.ChangeOwnershipTransfer:
			detections = append(detections, threat.Detection{
				Type:        "ownership_change",
				Severity:    threat.SeverityCritical,
				Description: fmt.Sprintf("Transfers contract ownership to %s", change.Address),
				Confidence:  0.98,
				Source:      sourceSimulator,
			})
		case simulator.ChangeBalance:
			amount, err := strconv.ParseFloat(change.Value, 64)
			if err != nil {
				continue
			}
			if amount > largeTransfer {
				detections = append(detections, threat.Detection{
					Type:        "large_transfer",
					Severity:    threat.SeverityMedium,
					Description: fmt.Sprintf("Moves %s %s in a single transaction", change.Value, tokenOrContract(change)),
					Confidence:  0.9,
					Source:      sourceSimulator,
				})
			}
		}
	}
	return detections
}

func tokenOrContract(change simulator.StateChange) string {
	if change.Token != "" {
		return change.Token
	}
	return "the target contract"
}
