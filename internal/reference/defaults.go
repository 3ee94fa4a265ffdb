package reference

// DefaultSpec returns the audited v2.1 reference tables
func DefaultSpec() Spec {
	return Spec{
		OEMs: map[string]OEM{
			"Amazon Web Services": {Tier: "Platinum", Alignment: 90},
			"AWS":                 {Tier: "Platinum", Alignment: 90},
			"Microsoft":           {Tier: "Platinum", Alignment: 85},
			"Palo Alto Networks":  {Tier: "Platinum", Alignment: 85},
			"Cisco":               {Tier: "Platinum", Alignment: 80},
			"ServiceNow":          {Tier: "Gold", Alignment: 80},
			"CrowdStrike":         {Tier: "Gold", Alignment: 80},
			"Dell":                {Tier: "Gold", Alignment: 75},
			"HPE":                 {Tier: "Gold", Alignment: 75},
			"Splunk":              {Tier: "Gold", Alignment: 75},
			"VMware":              {Tier: "Gold", Alignment: 70},
			"Fortinet":            {Tier: "Silver", Alignment: 70},
			"NetApp":              {Tier: "Silver", Alignment: 65},
			"Juniper":             {Tier: "Silver", Alignment: 65},
			"Oracle":              {Tier: "Silver", Alignment: 60},
			"IBM":                 {Tier: "Silver", Alignment: 60},
		},
		Partners: map[string]string{
			"World Wide Technology": "Cisco",
			"Iron Bow":              "Cisco",
			"Presidio":              "Cisco",
			"CDW-G":                 "Microsoft",
			"SHI":                   "Microsoft",
			"ePlus":                 "Palo Alto Networks",
			"Carahsoft":             "VMware",
			"DLT Solutions":         "Oracle",
			"Four Points":           "Dell",
			"GovConnection":         "HPE",
		},
		ContractVehicles: map[string]float64{
			"SEWP V":       95,
			"GSA Schedule": 90,
			"GSA MAS":      90,
			"Alliant 2":    90,
			"CIO-SP3":      88,
			"CIO-SP4":      88,
			"ITES-SW2":     85,
			"ITES-3H":      85,
			"NETCENTS-2":   85,
			"DoD ESI":      85,
			"CHESS":        82,
			"2GIT":         80,
			"Direct":       60,
		},
		Regions: map[string]float64{
			"East":    2.5,
			"West":    2.0,
			"Central": 1.5,
		},
		CustomerOrgs: map[string]string{
			"Department of Defense": CategoryDOD,
			"Army":                  CategoryDOD,
			"Navy":                  CategoryDOD,
			"Air Force":             CategoryDOD,
			"Marine Corps":          CategoryDOD,
			"Space Force":           CategoryDOD,
			"DISA":                  CategoryDOD,
			"DLA":                   CategoryDOD,
			"Veterans Affairs":      CategoryCivilian,
			"VA":                    CategoryCivilian,
			"Homeland Security":     CategoryCivilian,
			"DHS":                   CategoryCivilian,
			"HHS":                   CategoryCivilian,
			"Treasury":              CategoryCivilian,
			"GSA":                   CategoryCivilian,
			"NASA":                  CategoryCivilian,
			"Department of Energy":  CategoryCivilian,
			"USDA":                  CategoryCivilian,
			"State of Virginia":     CategoryOther,
			"State of Maryland":     CategoryOther,
			"City of New York":      CategoryOther,
			"University of Texas":   CategoryOther,
		},
		CustomerCategories: map[string]float64{
			CategoryDOD:      4.0,
			CategoryCivilian: 3.0,
			CategoryOther:    2.0,
		},
		GovernmentTags:    []string{"federal", "government", "agency", "public-sector", "fedramp"},
		CommercialMarkers: []string{"credit union", "bank", "inc", "llc", "ltd", "corp", "corporation", "company"},
	}
}
