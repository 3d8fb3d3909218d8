// Package kinetics is a self-contained gas-phase kinetics engine: reaction
// mechanisms with modified Arrhenius rates, and a constant-pressure adiabatic
// reactor that reports first-order sensitivities of its state to each
// tracked reaction rate.
//
// Mechanism units follow the usual CHEMKIN conventions: concentrations in
// mol/cm^3, time in seconds, activation energies in cal/mol and reaction
// enthalpies in J/mol (negative is exothermic).
//
// Sensitivities are normalized, d ln(y) / d ln(k), and computed by carrying
// one copy of the state per tracked reaction with that reaction's rate
// multiplied by (1 + perturbation). All copies share the same internal time
// steps, so integration error largely cancels in their difference.
package kinetics
