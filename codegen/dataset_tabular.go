package codegen

import (
	"fmt"
	"strings"

	"github.com/PIP-Team-3/paper2notebook/entities"
)

// TabularDatasetGenerator loads a user-uploaded CSV/Excel file at a
// runtime-injected path, applies categorical encoding, and targets an
// explicit target_column hint when provided, else falls back to the
// heuristic last column.
type TabularDatasetGenerator struct{}

func (TabularDatasetGenerator) Imports(*entities.PlanDocument) []string {
	return []string{
		"import pandas as pd",
		"from sklearn.preprocessing import LabelEncoder",
		"from sklearn.model_selection import train_test_split",
	}
}

func (TabularDatasetGenerator) Code(plan *entities.PlanDocument) string {
	format := plan.Dataset.LoaderHints["format"]
	reader := "pd.read_csv(DATASET_UPLOAD_PATH)"
	if strings.EqualFold(format, "xlsx") || strings.EqualFold(format, "xls") {
		reader = "pd.read_excel(DATASET_UPLOAD_PATH)"
	}
	targetColumn := plan.Dataset.LoaderHints["target_column"]
	var targetLine string
	if targetColumn != "" {
		targetLine = fmt.Sprintf("target_column = %q", targetColumn)
	} else {
		targetLine = "target_column = df.columns[-1]"
	}
	return fmt.Sprintf(`df = %s
%s
feature_columns = [c for c in df.columns if c != target_column]

df_encoded = df.copy()
for col in df_encoded.columns:
    if df_encoded[col].dtype == object:
        df_encoded[col] = LabelEncoder().fit_transform(df_encoded[col].astype(str))

X = df_encoded[feature_columns].to_numpy()
y = df_encoded[target_column].to_numpy()
X_train, X_test, y_train, y_test = train_test_split(
    X, y, test_size=0.2, random_state=SEED
)

log_event("dataset_loaded", {
    "source": "tabular",
    "name": %q,
    "train_size": len(X_train),
    "test_size": len(X_test),
})
`, reader, targetLine, plan.Dataset.CanonicalName)
}

func (TabularDatasetGenerator) Requirements(*entities.PlanDocument) []string {
	return []string{"openpyxl==3.1.2"}
}
