package curve

import (
	"github.com/lumen-amm/lumen/internal/umath"
)

// Constant-product quoting over virtual reserves. Rounding is always ceiling
// on the reserved side, so the invariant product after a swap is >= the
// product before it: the pool never loses value to integer division.

// quoteBuy prices a quote->base swap: amountIn quote enters, base leaves.
// Returns the base output and the new virtual reserves.
func quoteBuy(virtualQuote, virtualBase, amountIn uint64) (amountOut, newVirtualQuote, newVirtualBase uint64, err error) {
	newVirtualQuote = virtualQuote + amountIn
	if newVirtualQuote < virtualQuote {
		return 0, 0, 0, umath.ErrOverflow
	}
	k := umath.Mul128(virtualQuote, virtualBase)
	newVirtualBase, err = umath.CeilDiv128(k, newVirtualQuote)
	if err != nil {
		return 0, 0, 0, err
	}
	if newVirtualBase > virtualBase {
		// Dust-sized input rounded away entirely.
		newVirtualBase = virtualBase
	}
	return virtualBase - newVirtualBase, newVirtualQuote, newVirtualBase, nil
}

// quoteSell prices a base->quote swap: amountIn base enters, quote leaves.
func quoteSell(virtualQuote, virtualBase, amountIn uint64) (amountOut, newVirtualQuote, newVirtualBase uint64, err error) {
	newVirtualBase = virtualBase + amountIn
	if newVirtualBase < virtualBase {
		return 0, 0, 0, umath.ErrOverflow
	}
	k := umath.Mul128(virtualQuote, virtualBase)
	newVirtualQuote, err = umath.CeilDiv128(k, newVirtualBase)
	if err != nil {
		return 0, 0, 0, err
	}
	if newVirtualQuote > virtualQuote {
		newVirtualQuote = virtualQuote
	}
	return virtualQuote - newVirtualQuote, newVirtualQuote, newVirtualBase, nil
}

// quoteForBaseOut returns the net quote input required to extract exactly
// baseOut from the curve. Used to derive the implied input of a fill capped
// at the graduation boundary.
func quoteForBaseOut(virtualQuote, virtualBase, baseOut uint64) (uint64, error) {
	newVirtualBase := virtualBase - baseOut
	k := umath.Mul128(virtualQuote, virtualBase)
	newVirtualQuote, err := umath.CeilDiv128(k, newVirtualBase)
	if err != nil {
		return 0, err
	}
	return newVirtualQuote - virtualQuote, nil
}
