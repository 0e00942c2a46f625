package common

// Unit is the only currency unit the wallet keeps balances in.
const Unit = "sat"
