package monitor

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/alanyoungcy/dexarb/internal/domain"
)

// WriteTable renders opportunities as an aligned text table.
func WriteTable(w io.Writer, opps []domain.Opportunity) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PAIR\tBUY\tSELL\tBUY PRICE\tSELL PRICE\tPROFIT %\tNET %\tLIQUIDITY\tSLIPPAGE %\tCONFIDENCE")
	for _, o := range opps {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.6f\t%.6f\t%.3f\t%.3f\t%.0f\t%.3f\t%.1f\n",
			o.Pair.Key(), o.BuyVenue, o.SellVenue,
			o.BuyPrice, o.SellPrice,
			o.ProfitPercentage, o.NetProfitPercentage,
			o.Liquidity, o.EstimatedSlippage, o.ConfidenceScore,
		)
	}
	if len(opps) == 0 {
		fmt.Fprintln(tw, "(none)")
	}
	return tw.Flush()
}

// WriteChainTable renders multi-hop chains as an aligned text table.
func WriteChainTable(w io.Writer, chains []domain.ArbitrageChain) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ROUTE\tHOPS\tGROSS %\tNET %\tMIN LIQUIDITY\tRISK\tGAS ETH\tEXEC S")
	for _, c := range chains {
		fmt.Fprintf(tw, "%s\t%d\t%.3f\t%.3f\t%.0f\t%.2f\t%.5f\t%d\n",
			c.Route(), len(c.Hops),
			c.GrossProfitPercentage, c.NetProfitPercentage,
			c.MinLiquidity, c.RiskScore, c.GasCostEstimate, c.EstimatedExecutionTime,
		)
	}
	if len(chains) == 0 {
		fmt.Fprintln(tw, "(none)")
	}
	return tw.Flush()
}
