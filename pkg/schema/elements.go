package schema

// Chemical element symbols, in atomic number order.
var elementSymbols = []string{
	"H", "He", "Li", "Be", "B", "C", "N", "O", "F", "Ne",
	"Na", "Mg", "Al", "Si", "P", "S", "Cl", "Ar", "K", "Ca",
	"Sc", "Ti", "V", "Cr", "Mn", "Fe", "Co", "Ni", "Cu", "Zn",
	"Ga", "Ge", "As", "Se", "Br", "Kr", "Rb", "Sr", "Y", "Zr",
	"Nb", "Mo", "Tc", "Ru", "Rh", "Pd", "Ag", "Cd", "In", "Sn",
	"Sb", "Te", "I", "Xe", "Cs", "Ba", "La", "Ce", "Pr", "Nd",
	"Pm", "Sm", "Eu", "Gd", "Tb", "Dy", "Ho", "Er", "Tm", "Yb",
	"Lu", "Hf", "Ta", "W", "Re", "Os", "Ir", "Pt", "Au", "Hg",
	"Tl", "Pb", "Bi", "Po", "At", "Rn", "Fr", "Ra", "Ac", "Th",
	"Pa", "U", "Np", "Pu", "Am", "Cm", "Bk", "Cf", "Es", "Fm",
	"Md", "No", "Lr", "Rf", "Db", "Sg", "Bh", "Hs", "Mt", "Ds",
	"Rg", "Cn", "Nh", "Fl", "Mc", "Lv", "Ts", "Og",
}

// Absorption edge labels recognized in measurement metadata.
var edgeLabels = []string{
	"K",
	"L1", "L2", "L3",
	"M1", "M2", "M3", "M4", "M5",
	"N1", "N2", "N3", "N4", "N5", "N6", "N7",
	"O1", "O2", "O3", "O4", "O5",
	"P1", "P2", "P3",
}

var (
	symbolSet = toSet(elementSymbols)
	edgeSet   = toSet(edgeLabels)
)

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, v := range items {
		set[v] = struct{}{}
	}
	return set
}

// ValidSymbol reports whether v is a known element symbol.
func ValidSymbol(v string) bool {
	_, ok := symbolSet[v]
	return ok
}

// ValidEdge reports whether v is a known absorption edge label.
func ValidEdge(v string) bool {
	_, ok := edgeSet[v]
	return ok
}
